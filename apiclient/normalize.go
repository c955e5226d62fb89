package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Meta is the pagination block some endpoints attach to the envelope.
type Meta struct {
	Page       int  `json:"page,omitempty"`
	Limit      int  `json:"limit,omitempty"`
	Total      int  `json:"total,omitempty"`
	TotalPages int  `json:"totalPages,omitempty"`
	HasNext    bool `json:"hasNext,omitempty"`
	HasPrev    bool `json:"hasPrev,omitempty"`
}

// Response is a normalized 2xx response.
type Response[T any] struct {
	Success bool     `json:"success"`
	Data    T        `json:"data"`
	Message string   `json:"message,omitempty"`
	Errors  []string `json:"errors,omitempty"`
	Meta    *Meta    `json:"meta,omitempty"`

	StatusCode int    `json:"-"`
	RequestID  string `json:"-"`
}

// Normalize unwraps the server envelope. A non-empty "data" member takes
// precedence over the body itself; "message", "errors" and "meta" are read
// from the top level. Bodies that are not JSON objects become Data as-is.
func Normalize(body []byte) (*Response[json.RawMessage], error) {
	resp := &Response[json.RawMessage]{Success: true}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return resp, nil
	}
	if !json.Valid(trimmed) {
		// Plain-text bodies are carried as a JSON string.
		quoted, err := json.Marshal(string(trimmed))
		if err != nil {
			return nil, err
		}
		resp.Data = quoted
		return resp, nil
	}
	if trimmed[0] != '{' {
		resp.Data = json.RawMessage(trimmed)
		return resp, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("decode response envelope: %w", err)
	}

	if data, ok := envelope["data"]; ok && !isFalsy(data) {
		resp.Data = data
	} else {
		resp.Data = json.RawMessage(trimmed)
	}

	if raw, ok := envelope["message"]; ok {
		_ = json.Unmarshal(raw, &resp.Message)
	}
	if raw, ok := envelope["errors"]; ok {
		_ = json.Unmarshal(raw, &resp.Errors)
	}
	if raw, ok := envelope["meta"]; ok && !isFalsy(raw) {
		var meta Meta
		if err := json.Unmarshal(raw, &meta); err == nil {
			resp.Meta = &meta
		}
	}
	return resp, nil
}

// isFalsy matches the JSON values a server uses to mean "no data":
// null, false, zero and the empty string.
func isFalsy(raw json.RawMessage) bool {
	v := bytes.TrimSpace(raw)
	switch string(v) {
	case "", "null", "false", `""`:
		return true
	}
	if f, err := strconv.ParseFloat(string(v), 64); err == nil {
		return f == 0
	}
	return false
}

// Decode converts a raw normalized response into a typed one.
// Empty or null Data leaves the zero value of T.
func Decode[T any](raw *Response[json.RawMessage]) (*Response[T], error) {
	out := &Response[T]{
		Success:    raw.Success,
		Message:    raw.Message,
		Errors:     raw.Errors,
		Meta:       raw.Meta,
		StatusCode: raw.StatusCode,
		RequestID:  raw.RequestID,
	}
	data := bytes.TrimSpace(raw.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return out, nil
	}
	if err := json.Unmarshal(data, &out.Data); err != nil {
		return nil, fmt.Errorf("decode response data: %w", err)
	}
	return out, nil
}
