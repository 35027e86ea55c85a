package interceptor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Messages carried by synthesized responses.
const (
	QueuedMessage  = "Operation queued for when you come back online"
	OfflineMessage = "You are currently offline. Some features may not be available."
)

// QueuedBody acknowledges a write kept for later replay.
type QueuedBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Offline bool   `json:"offline"`
	Queued  bool   `json:"queued"`
}

// OfflineBody is returned when nothing can answer a request.
type OfflineBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Offline bool   `json:"offline"`
}

// CachedCollectionBody serves the entity mirror in place of the collection endpoint.
type CachedCollectionBody struct {
	Data    CachedCollectionData `json:"data"`
	Offline bool                 `json:"offline"`
	Cached  bool                 `json:"cached"`
}

type CachedCollectionData struct {
	Recipes []json.RawMessage `json:"recipes"`
}

func synthesize(req *http.Request, status int, contentType string, body []byte) *http.Response {
	h := make(http.Header)
	h.Set("Content-Type", contentType)
	h.Set("X-Gateway-Offline", "true")
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

func jsonResponse(req *http.Request, status int, v any) *http.Response {
	body, err := json.Marshal(v)
	if err != nil {
		// All payloads are fixed structs; this only trips on a broken cached entity.
		body = []byte(`{"error":"Offline","offline":true}`)
		status = http.StatusServiceUnavailable
	}
	return synthesize(req, status, "application/json", body)
}

func queuedResponse(req *http.Request) *http.Response {
	return jsonResponse(req, http.StatusAccepted, QueuedBody{
		Success: true,
		Message: QueuedMessage,
		Offline: true,
		Queued:  true,
	})
}

func offlineResponse(req *http.Request) *http.Response {
	return jsonResponse(req, http.StatusServiceUnavailable, OfflineBody{
		Error:   "Offline",
		Message: OfflineMessage,
		Offline: true,
	})
}

func cachedCollectionResponse(req *http.Request, items []json.RawMessage) *http.Response {
	if items == nil {
		items = []json.RawMessage{}
	}
	return jsonResponse(req, http.StatusOK, CachedCollectionBody{
		Data:    CachedCollectionData{Recipes: items},
		Offline: true,
		Cached:  true,
	})
}

// badGatewayResponse renders a network failure for strategies that do not
// degrade, so the caller sees the failure rather than a stand-in.
func badGatewayResponse(req *http.Request, cause error) *http.Response {
	msg := http.StatusText(http.StatusBadGateway) + ": " + cause.Error()
	return synthesize(req, http.StatusBadGateway, "text/plain; charset=utf-8", []byte(msg))
}
