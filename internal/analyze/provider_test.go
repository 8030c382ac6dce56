package analyze

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClass_Retryable(t *testing.T) {
	tests := []struct {
		class Class
		want  bool
	}{
		{class: ClassUnauthorized, want: false},
		{class: ClassNotFound, want: false},
		{class: ClassRateLimited, want: true},
		{class: ClassServerError, want: true},
		{class: ClassOther, want: true},
		{class: Class("unknown"), want: true},
	}

	for _, tt := range tests {
		t.Run(string(tt.class), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.class.Retryable())
		})
	}
}

func TestClassify(t *testing.T) {
	direct := &Error{Class: ClassRateLimited, Message: "quota"}
	wrapped := fmt.Errorf("attempt 2: %w", &Error{Class: ClassUnauthorized, Message: "bad key"})

	tests := []struct {
		name string
		err  error
		want Class
	}{
		{name: "direct error", err: direct, want: ClassRateLimited},
		{name: "wrapped error", err: wrapped, want: ClassUnauthorized},
		{name: "plain error", err: errors.New("boom"), want: ClassOther},
		{name: "nil error", err: nil, want: ClassOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestError_Message(t *testing.T) {
	plain := &Error{Class: ClassServerError, Message: "model unreachable"}
	assert.Equal(t, "analysis failed (server_error): model unreachable", plain.Error())
	assert.Nil(t, plain.Unwrap())

	cause := errors.New("connection reset")
	wrapped := &Error{Class: ClassOther, Message: "stream broke", Err: cause}
	assert.Contains(t, wrapped.Error(), "stream broke")
	assert.ErrorIs(t, wrapped, cause)
}
