package api_response

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/okieraised/greenhouse-agent/internal/constants"
)

type Response[T any] struct {
	RequestID     string         `json:"request_id"`
	Code          string         `json:"code"`
	Message       string         `json:"message"`
	ServerTime    int64          `json:"server_time"`
	ServerTimeISO string         `json:"server_time_iso"`
	Count         int            `json:"count,omitempty"`
	Data          T              `json:"data"`
	Meta          map[string]any `json:"meta,omitempty"`
}

type BaseOutput struct {
	Status  int
	Code    string
	Message string
	Data    any
	Count   int
	Meta    any
}

func New[T any](ctx context.Context) *Response[T] {
	now := time.Now()
	return &Response[T]{
		RequestID:     requestIDFromContext(ctx),
		ServerTime:    now.Unix(),
		ServerTimeISO: now.Format(time.RFC3339),
	}
}

func (r *Response[T]) WithMetaKV(k string, v any) *Response[T] {
	if r.Meta == nil {
		r.Meta = make(map[string]any)
	}
	r.Meta[k] = v
	return r
}

func (r *Response[T]) WithMeta(m map[string]any) *Response[T] {
	if m == nil {
		return r
	}
	if r.Meta == nil {
		r.Meta = make(map[string]any, len(m))
	}
	for k, v := range m {
		r.Meta[k] = v
	}
	return r
}

// Populate fills the envelope. A map meta is merged; any other meta is stored
// under "meta". count is applied only when it is an int.
func (r *Response[T]) Populate(code, message string, data T, meta any, count any) *Response[T] {
	r.Code = code
	r.Message = message
	r.Data = data
	if meta != nil {
		switch m := meta.(type) {
		case map[string]any:
			r.WithMeta(m)
		default:
			r.WithMetaKV("meta", m)
		}
	}
	if count != nil {
		if total, ok := count.(int); ok {
			r.Count = total
		}
	}
	return r
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return uuid.New().String()
	}

	if v := ctx.Value(constants.APIFieldRequestID); v != nil {
		return fmt.Sprint(v)
	}
	return uuid.New().String()
}
