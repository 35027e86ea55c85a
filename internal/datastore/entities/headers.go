package entities

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Headers maps a header name to its value as captured at enqueue time.
// Multiple values of one header are joined with ", ".
type Headers map[string]string

// HeadersFrom flattens an http.Header.
func HeadersFrom(h http.Header) Headers {
	out := make(Headers, len(h))
	for name, values := range h {
		out[strings.ToLower(name)] = strings.Join(values, ", ")
	}
	return out
}

// HTTPHeader expands the map back into an http.Header.
func (h Headers) HTTPHeader() http.Header {
	out := make(http.Header, len(h))
	for name, value := range h {
		out.Set(name, value)
	}
	return out
}

// Value implements driver.Valuer, storing the map as JSON text.
func (h Headers) Value() (driver.Value, error) {
	if h == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]string(h))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (h *Headers) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*h = Headers{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("headers: unsupported column type %T", src)
	}
	m := map[string]string{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("headers: %w", err)
	}
	*h = m
	return nil
}
