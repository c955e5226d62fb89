package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
)

// Typed helpers decode the normalized Data into T. Domain services use them
// with any Requester.

func Get[T any](ctx context.Context, r Requester, path string, opts ...RequestOption) (*Response[T], error) {
	return do[T](ctx, r, NewRequest(http.MethodGet, path, nil, opts...))
}

func Post[T any](ctx context.Context, r Requester, path string, body any, opts ...RequestOption) (*Response[T], error) {
	return do[T](ctx, r, NewRequest(http.MethodPost, path, body, opts...))
}

func Put[T any](ctx context.Context, r Requester, path string, body any, opts ...RequestOption) (*Response[T], error) {
	return do[T](ctx, r, NewRequest(http.MethodPut, path, body, opts...))
}

func Patch[T any](ctx context.Context, r Requester, path string, body any, opts ...RequestOption) (*Response[T], error) {
	return do[T](ctx, r, NewRequest(http.MethodPatch, path, body, opts...))
}

func Delete[T any](ctx context.Context, r Requester, path string, opts ...RequestOption) (*Response[T], error) {
	return do[T](ctx, r, NewRequest(http.MethodDelete, path, nil, opts...))
}

// UploadAs uploads file and decodes the response Data into T.
func UploadAs[T any](ctx context.Context, r Requester, path string, file FileUpload, opts ...UploadOption) (*Response[T], error) {
	raw, err := r.Upload(ctx, path, file, opts...)
	if err != nil {
		return nil, err
	}
	return Decode[T](raw)
}

func do[T any](ctx context.Context, r Requester, req Request) (*Response[T], error) {
	raw, err := r.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	return Decode[T](raw)
}

// Empty is a placeholder T for endpoints whose Data is ignored.
type Empty = json.RawMessage
