package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RLASH18/abg-prime-v2/internal/platform/requestctx"
)

func TestWriteErrorEnvelope(t *testing.T) {
	t.Parallel()

	ctx := requestctx.WithRequestID(context.Background(), "req-1")
	ctx = requestctx.WithTrace(ctx, requestctx.TraceInfo{TraceID: "trace-1"})
	rec := httptest.NewRecorder()

	WriteError(ctx, rec, NewError("insufficient_stock", "only 2\nleft", http.StatusConflict).
		WithDetails(map[string]any{"available": 2}))

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "insufficient_stock", body["error"])
	assert.Equal(t, "only 2 left", body["message"])
	assert.Equal(t, "req-1", body["request_id"])
	assert.Equal(t, "trace-1", body["trace_id"])
	assert.EqualValues(t, 2, body["available"])
}

func TestNewErrorDefaultsStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, http.StatusInternalServerError, NewError("boom", "", 0).Status)
}
