package tools

import (
	"context"
	"testing"
)

func TestRequestIDFromContext(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{"empty when unset", context.Background(), ""},
		{"round trip", WithRequestID(context.Background(), "req-123"), "req-123"},
		{"survives detach", context.WithoutCancel(WithRequestID(context.Background(), "req-9")), "req-9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RequestIDFromContext(tt.ctx); got != tt.want {
				t.Errorf("RequestIDFromContext() = %q, want %q", got, tt.want)
			}
		})
	}
}
