package trace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractFromHeader(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string][]string
		want    string
	}{
		{
			name:    "X-Trace-Id 优先",
			headers: map[string][]string{"x-trace-id": {"abc"}, "X-Request-Id": {"def"}},
			want:    "abc",
		},
		{
			name:    "回退到 X-Request-Id",
			headers: map[string][]string{"X-Request-Id": {"def"}},
			want:    "def",
		},
		{
			name:    "解析 traceparent",
			headers: map[string][]string{"Traceparent": {"00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"}},
			want:    "4bf92f3577b34da6a3ce929d0e0e4736",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractFromHeader(tt.headers))
		})
	}
}

func TestExtractFromHeaderGenerates(t *testing.T) {
	id := ExtractFromHeader(map[string][]string{"Traceparent": {"garbage"}})
	assert.Len(t, id, 32)
}

func TestEnsure(t *testing.T) {
	ctx, id := Ensure(context.Background(), "carried")
	assert.Equal(t, "carried", id)
	assert.Equal(t, "carried", GetTraceID(ctx))

	ctx2, id2 := Ensure(ctx, "")
	assert.Equal(t, "carried", id2)
	assert.Equal(t, "carried", GetTraceID(ctx2))

	_, fresh := Ensure(context.Background(), "")
	assert.Len(t, fresh, 32)
}
