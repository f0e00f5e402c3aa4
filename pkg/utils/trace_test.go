package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceId(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetTraceId(ctx))

	ctx = SetTraceId(ctx, "req-1")
	assert.Equal(t, "req-1", GetTraceId(ctx))
}

func TestTraceHandler(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewTraceHandler(slog.NewJSONHandler(&buf, nil))).With("component", "test")

	log.InfoContext(SetTraceId(context.Background(), "req-42"), "traced")
	log.InfoContext(context.Background(), "untraced")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var traced, untraced map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &traced))
	require.NoError(t, json.Unmarshal(lines[1], &untraced))

	assert.Equal(t, "req-42", traced["trace_id"])
	assert.Equal(t, "test", traced["component"])
	assert.NotContains(t, untraced, "trace_id")
}
