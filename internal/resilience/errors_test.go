package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "timed out" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient error", NewTransientError(errors.New("rate limited"), 429), true},
		{"wrapped transient", eris.Wrap(NewTransientError(errors.New("x"), 503), "completion: call"), true},
		{"fmt wrapped transient", fmt.Errorf("outer: %w", NewTransientError(errors.New("x"), 0)), true},
		{"net timeout", timeoutErr{}, true},
		{"conn reset", syscall.ECONNRESET, true},
		{"conn refused wrapped", eris.Wrap(syscall.ECONNREFUSED, "dial"), true},
		{"broken pipe text", errors.New("write: Broken Pipe"), true},
		{"unexpected eof text", errors.New("read body: unexpected EOF"), true},
		{"context canceled", context.Canceled, false},
		{"plain", errors.New("invalid api key"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 409, 425, 429, 500, 502, 503, 504, 529} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 400, 401, 403, 404, 422, 501} {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}

func TestFromStatus(t *testing.T) {
	base := errors.New("boom")

	assert.Nil(t, FromStatus(nil, 500))
	assert.Same(t, base, FromStatus(base, 400))

	err := FromStatus(base, 529)
	var te *TransientError
	assert.True(t, errors.As(err, &te))
	assert.Equal(t, 529, te.StatusCode)
	assert.ErrorIs(t, err, base)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ClassTransient, Classify(NewTransientError(errors.New("x"), 503)))
	assert.Equal(t, ClassPermanent, Classify(errors.New("bad request")))
}

func TestTransientError_Message(t *testing.T) {
	err := NewTransientError(errors.New("overloaded"), 529)
	assert.Equal(t, "overloaded", err.Error())
	assert.Equal(t, "overloaded", errors.Unwrap(err).Error())
}
