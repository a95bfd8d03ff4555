package applog

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePoster struct {
	tags []string
	msgs []map[string]any
}

func (f *fakePoster) Post(tag string, message interface{}) error {
	f.tags = append(f.tags, tag)
	f.msgs = append(f.msgs, message.(map[string]any))
	return nil
}

func (f *fakePoster) Close() error { return nil }

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q)=%v want %v", in, got, want)
		}
	}
}

func TestConsoleOnly(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l, closeFn, err := New(Config{Level: "info", NoColor: true, Writer: &buf})
	require.NoError(t, err)
	defer closeFn()

	l.Debug("hidden")
	l.Info("snapshot saved", "rows", 12)
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "snapshot saved")
	assert.Contains(t, out, "rows=12")
}

func TestFluentHandlerFields(t *testing.T) {
	t.Parallel()
	p := &fakePoster{}
	var buf bytes.Buffer
	console := slog.NewTextHandler(&buf, nil)
	l := slog.New(Fanout(console, NewFluentHandler(p, slog.LevelWarn)))

	l.Info("console only")
	l.With("component", "refresh").WithGroup("run").Warn("fetch failed", "id", "abc", "err", errors.New("timeout"))

	require.Len(t, p.msgs, 1)
	assert.Equal(t, "warn", p.tags[0])
	got := p.msgs[0]
	assert.Equal(t, "fetch failed", got["message"])
	assert.Equal(t, "refresh", got["component"])
	assert.Equal(t, "abc", got["run.id"])
	assert.Equal(t, "timeout", got["run.err"])
	assert.NotEmpty(t, got["timestamp"])

	assert.Contains(t, buf.String(), "console only")
	assert.Contains(t, buf.String(), "fetch failed")
}

func TestLogfLevels(t *testing.T) {
	t.Parallel()
	p := &fakePoster{}
	logf := Logf(slog.New(NewFluentHandler(p, slog.LevelDebug)))

	logf("refresh poller start: interval=%s", "5m")
	logf("warning: sheet has %d duplicate columns", 2)
	logf("[%-8s][ERROR] %v", "abc", "boom")

	require.Len(t, p.tags, 3)
	assert.Equal(t, []string{"info", "warn", "error"}, p.tags)
	assert.Equal(t, "refresh poller start: interval=5m", p.msgs[0]["message"])
}
