package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestLogFilePath(t *testing.T) {
	now := func() time.Time {
		return time.Date(2024, time.September, 26, 13, 0, 0, 0, time.UTC)
	}
	testCases := []struct {
		opts     FileLoggerOptions
		expected string
	}{
		{opts: FileLoggerOptions{Now: now}, expected: "2024_09_26_log.log"},
		{opts: FileLoggerOptions{Now: now, Format: "monthly", File: "run.log"}, expected: "2024_09_run.log"},
		{opts: FileLoggerOptions{Now: now, Format: FileFormatNone, File: "run.log"}, expected: "run.log"},
		{opts: FileLoggerOptions{Now: now, Format: "weekly", File: "run.log"}, expected: "run.log"},
		{
			opts:     FileLoggerOptions{Now: now, RootDir: "batch", File: "run.log"},
			expected: filepath.Join("batch", "2024_09_26_run.log"),
		},
	}
	for _, test := range testCases {
		require.Equal(t, test.expected, LogFilePath(test.opts))
	}
}

func TestFileLoggerAppends(t *testing.T) {
	opts := FileLoggerOptions{
		Name:    "Debug Dump",
		File:    "dump.log",
		Format:  FileFormatNone,
		Level:   slog.LevelInfo,
		RootDir: filepath.Join(t.TempDir(), "logs"),
	}
	for _, message := range []string{"first", "second"} {
		logger, closer, err := NewFileLogger(opts)
		require.NoError(t, err)
		logger.Info(message)
		logger.Debug("filtered")
		require.NoError(t, closer.Close())
	}

	contents, err := os.ReadFile(LogFilePath(opts))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(contents)), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "msg=first")
	require.Contains(t, lines[0], `logger="Debug Dump"`)
	require.Contains(t, lines[1], "msg=second")
}

func TestTee(t *testing.T) {
	var info, debug bytes.Buffer
	logger := Tee(
		slog.New(slog.NewTextHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo})),
		slog.New(slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug})),
	).With("run_id", "abc")

	logger.Debug("details")
	logger.Info("summary")

	require.NotContains(t, info.String(), "details")
	require.Contains(t, info.String(), "summary")
	require.Contains(t, debug.String(), "details")
	require.Contains(t, debug.String(), "run_id=abc")
}

func TestScopedAPI(t *testing.T) {
	recorder := &Recorder{}
	scoped := NewScopedAPI("connect", recorder)
	scoped.ReportBroken("client.query", "boom")
	scoped.ReportWarning("client.rows")
	scoped.ReportCount("client.rows", 3)

	require.Equal(t, "connect: client.query", recorder.Reports("broken")[0].ID)
	require.Equal(t, "connect: client.rows", recorder.Reports("warning")[0].ID)
	require.Equal(t, []any{int64(3)}, recorder.Reports("count")[0].Params)
	require.Len(t, recorder.Reports(""), 3)

	nested := NewScopedAPI("keychain", NewScopedAPI("pmc", recorder))
	require.Equal(t, "pmc.keychain", nested.Namespace())
	nested.ReportDebug("opened")
	require.Equal(t, "pmc.keychain: opened", recorder.Reports("debug")[0].ID)

	var nop API = Nop{}
	NewScopedAPI("x", nop).ReportBroken("y")
}

func TestInstrumentResty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	recorder := &Recorder{}
	client := resty.New()
	InstrumentResty(client, recorder, "test")

	var ids []uint64
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		ids = append(ids, RequestID(res.Request.Context()))
		return nil
	})

	for i := 0; i < 2; i++ {
		_, err := client.R().SetContext(context.Background()).Get(server.URL)
		require.NoError(t, err)
	}
	require.Equal(t, []uint64{1, 2}, ids)
	require.Equal(t, uint64(0), RequestID(context.Background()))

	// a failed connection is reported as broken
	_, err := client.R().Get("http://127.0.0.1:1")
	require.Error(t, err)
	require.Len(t, recorder.Reports("broken"), 1)
}

func TestInstrumentRestyRetrySpans(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			conn, _, err := w.(http.Hijacker).Hijack()
			if err == nil {
				conn.Close()
			}
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	spans := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	defer provider.Shutdown(context.Background())
	tracer := provider.Tracer("test")

	client := resty.New().
		SetRetryCount(3).
		SetRetryWaitTime(time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Millisecond)
	InstrumentRestyWithTracer(client, &Recorder{}, tracer)

	ctx, parent := tracer.Start(context.Background(), "query")
	res, err := client.R().SetContext(ctx).Get(server.URL)
	parent.End()
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, res.StatusCode())
	require.Equal(t, int32(3), atomic.LoadInt32(&calls))

	var attempts []sdktrace.ReadOnlySpan
	for _, span := range spans.Ended() {
		if span.Name() == "http GET" {
			attempts = append(attempts, span)
		}
	}
	require.Len(t, attempts, 3)
	for i, span := range attempts {
		require.Equal(t, parent.SpanContext().SpanID(), span.Parent().SpanID(), "attempt %d", i)
	}
	require.Equal(t, codes.Error, attempts[0].Status().Code)
	require.Equal(t, codes.Error, attempts[1].Status().Code)
	require.NotEqual(t, codes.Error, attempts[2].Status().Code)
}
