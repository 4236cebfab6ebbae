package contextx

import (
	"context"
	"testing"
)

func TestFields(t *testing.T) {
	ctx := context.Background()
	if RequestID(ctx) != "" || ClientIP(ctx) != "" {
		t.Fatal("empty context must yield empty fields")
	}
	ctx = WithClientIP(WithRequestID(ctx, "req-1"), "10.0.0.1")
	if got := RequestID(ctx); got != "req-1" {
		t.Errorf("RequestID = %q", got)
	}
	if got := ClientIP(ctx); got != "10.0.0.1" {
		t.Errorf("ClientIP = %q", got)
	}
}
