package cerrors

import (
	"context"
	"errors"
	"net/http"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestAppErrorHelpers(t *testing.T) {
	cause := errors.New("boom")
	err := ErrSensorNotFound.WithCause(cause).WithMessage("sensor %s not found", "1/temp")

	assert.Equal(t, "sensor 1/temp not found", err.Error())
	assert.Equal(t, "430000", CodeOf(err))
	assert.Equal(t, http.StatusNotFound, HTTPStatusOf(err))
	assert.True(t, IsCode(pkgerrors.Wrap(err, "lookup"), "430000"))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "OK", MessageOf(nil))
	assert.Equal(t, "UNKNOWN", CodeOf(cause))
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "plain", err: errors.New("bad row"), want: false},
		{name: "marked", err: Transient(errors.New("connection reset")), want: true},
		{name: "wrapped marked", err: pkgerrors.Wrap(Transient(errors.New("reset")), "query"), want: true},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "marked canceled", err: Transient(context.Canceled), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
	assert.Nil(t, Transient(nil))
}
