package api_response

import (
	"context"
	"testing"

	"github.com/okieraised/greenhouse-agent/internal/constants"
	"github.com/stretchr/testify/assert"
)

func TestNewUsesRequestIDFromContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), constants.APIFieldRequestID, "req-1")
	assert.Equal(t, "req-1", New[any](ctx).RequestID)
	assert.NotEmpty(t, New[any](context.Background()).RequestID)
}

func TestPopulate(t *testing.T) {
	resp := New[[]int](context.Background()).Populate("OK", "OK", []int{1, 2}, map[string]any{"source": "cache"}, 2)
	assert.Equal(t, []int{1, 2}, resp.Data)
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, "cache", resp.Meta["source"])

	resp2 := New[any](context.Background()).Populate("E", "failed", nil, "detail", "not-an-int")
	assert.Equal(t, "detail", resp2.Meta["meta"])
	assert.Zero(t, resp2.Count)
}
