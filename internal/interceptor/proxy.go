package interceptor

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// hopHeaders are dropped when forwarding in either direction.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// removeHopHeaders strips hop-by-hop headers, including those listed in Connection.
func removeHopHeaders(h http.Header) {
	for _, f := range h.Values("Connection") {
		for sf := range strings.SplitSeq(f, ",") {
			if sf = textproto.TrimString(sf); sf != "" && httpguts.ValidHeaderFieldName(sf) {
				h.Del(sf)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}

// readBody buffers the request body once so it can be both forwarded and queued.
func readBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer func() { _ = req.Body.Close() }()
	return io.ReadAll(req.Body)
}

// upstreamRequest builds the outbound copy of req against the configured upstream.
func (i *Interceptor) upstreamRequest(ctx context.Context, req *http.Request, body []byte) (*http.Request, error) {
	var rdr io.Reader = http.NoBody
	if len(body) > 0 {
		rdr = bytes.NewReader(body)
	}
	out, err := http.NewRequestWithContext(ctx, req.Method, i.upstreamURL(req), rdr)
	if err != nil {
		return nil, err
	}
	out.Header = req.Header.Clone()
	removeHopHeaders(out.Header)
	out.Header.Del("Host")
	return out, nil
}

func (i *Interceptor) upstreamURL(req *http.Request) string {
	return i.settings.UpstreamURL(req.URL.Path, req.URL.RawQuery)
}

// fetch sends req upstream. Any transport error is a network failure.
func (i *Interceptor) fetch(req *http.Request, body []byte) (*http.Response, error) {
	out, err := i.upstreamRequest(req.Context(), req, body)
	if err != nil {
		return nil, err
	}
	resp, err := i.client.Do(out)
	if err != nil {
		return nil, err
	}
	removeHopHeaders(resp.Header)
	resp.Request = req
	return resp, nil
}

// cacheKeyRequest is the identity under which responses to req are cached:
// its method and absolute upstream URL.
func (i *Interceptor) cacheKeyRequest(req *http.Request) *http.Request {
	u, err := url.Parse(i.upstreamURL(req))
	if err != nil {
		u = req.URL
	}
	return &http.Request{Method: req.Method, URL: u, Header: req.Header}
}

// WriteResponse copies resp to w, dropping hop-by-hop headers.
func WriteResponse(w http.ResponseWriter, resp *http.Response) error {
	if resp.Body != nil {
		defer func() { _ = resp.Body.Close() }()
	}
	h := w.Header()
	for name, values := range resp.Header {
		for _, v := range values {
			h.Add(name, v)
		}
	}
	removeHopHeaders(h)
	w.WriteHeader(resp.StatusCode)
	if resp.Body == nil {
		return nil
	}
	_, err := io.Copy(w, resp.Body)
	return err
}
