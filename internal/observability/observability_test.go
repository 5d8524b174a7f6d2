package observability

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sail-program/sail-gateway/internal/config"
)

func TestRequestLogger_AssignsRequestIDAndCounts(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	metrics := NewMetrics()

	app := fiber.New()
	app.Use(RequestLogger(zap.New(core), metrics))
	app.Get("/ping/:id", func(c *fiber.Ctx) error {
		return c.SendString(RequestID(c))
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ping/7", nil))
	require.NoError(t, err)
	rid := resp.Header.Get(HeaderRequestID)
	assert.NotEmpty(t, rid)

	req := httptest.NewRequest(http.MethodGet, "/ping/8", nil)
	req.Header.Set(HeaderRequestID, "abc")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "abc", resp.Header.Get(HeaderRequestID))

	assert.Equal(t, int64(2), metrics.Snapshot().Requests["/ping/:id|GET|200"])
	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "abc", logs.All()[1].ContextMap()["request_id"])
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordDecision("allow")
	m.RecordRequest("/", "GET", 200, 0)
	assert.Empty(t, m.Snapshot().Decisions)
}

func TestMetrics_SnapshotIsACopy(t *testing.T) {
	m := NewMetrics()
	m.RecordDecision("allow")
	m.RecordRefresh("rejected")

	snap := m.Snapshot()
	snap.Decisions["allow"] = 99
	assert.Equal(t, int64(1), m.Snapshot().Decisions["allow"])
	assert.Equal(t, int64(1), m.Snapshot().Refreshes["rejected"])
}

func TestNewLogger_WritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.log")
	logger, err := NewLogger(config.LoggerConfig{Level: "debug", File: path, MaxSizeMB: 1})
	require.NoError(t, err)

	logger.Debug("hello", zap.String("k", "v"))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"hello"`)
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "2b7e1516", ShortID("2b7e1516-28ae-4d2a-a6d2-a6abf7158809"))
	assert.Equal(t, "abc", ShortID("abc"))
}
