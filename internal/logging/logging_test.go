package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevelAndFormat(t *testing.T) {
	lvl, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, LevelDebug, lvl)
	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, LevelInfo, lvl)
	_, err = ParseLevel("loud")
	require.Error(t, err)

	f, err := ParseFormat("json")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)
	_, err = ParseFormat("xml")
	require.Error(t, err)
}

func TestNewJSONWithBook(t *testing.T) {
	var buf bytes.Buffer
	logger := WithBook(New(&buf, LevelInfo, FormatJSON), "Ruth")
	logger.Debug("hidden")
	logger.Info("reconciled", "inserted", 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "reconciled", rec["msg"])
	assert.Equal(t, "Ruth", rec["book"])
	assert.EqualValues(t, 3, rec["inserted"])
}

func TestRequestIDContext(t *testing.T) {
	ctx := WithRequestID(context.Background(), "abc")
	assert.Equal(t, "abc", GetRequestID(ctx))
	assert.Equal(t, "", GetRequestID(context.Background()))
}

func TestMiddlewareSetsRequestID(t *testing.T) {
	var seen string
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
}

func TestConfigure(t *testing.T) {
	t.Cleanup(func() { InitLogger(LevelInfo, FormatText) })
	require.Error(t, Configure("loud", "text"))
	require.Error(t, Configure("info", "xml"))
	require.NoError(t, Configure("warn", "json"))
	assert.False(t, GetLogger().Enabled(context.Background(), slog.LevelInfo))
}
