package core

import (
	"context"
	"reflect"
)

// Request is an admin API request. Validate runs after binding, before the handler.
type Request interface {
	Validate() error
}

type Response any

// HandlerInterface is a typed admin API handler.
type HandlerInterface[R Request, Res Response] interface {
	Handle(ctx context.Context, req R) (Res, error)
}

// HandlerMiddleware wraps a HandlerFunc.
type HandlerMiddleware func(next HandlerFunc) HandlerFunc

// HandlerFunc is the type-erased form a Server registers.
type HandlerFunc func(ctx context.Context, req any) (any, error)

// Server is the admin API server.
type Server interface {
	Run() error
	Shutdown(ctx context.Context) error
	Use(middleware ...HandlerMiddleware)
	Register(method, path string, handler HandlerFunc, reqFactory func() any)
}

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

type BaseResponse[T any] struct {
	Success bool      `json:"success"`
	Data    T         `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

// RegisterEndpoint registers handler on server. Each call binds into a fresh R built by
// the request factory.
func RegisterEndpoint[R Request, Res Response](server Server, method, path string, handler HandlerInterface[R, Res]) {
	adapter := func(ctx context.Context, req any) (any, error) {
		return handler.Handle(ctx, req.(R))
	}

	reqFactory := func() any {
		var r R
		t := reflect.TypeOf(r)
		if t.Kind() == reflect.Ptr {
			return reflect.New(t.Elem()).Interface()
		}
		return reflect.New(t).Interface()
	}

	server.Register(method, path, adapter, reqFactory)
}
