package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologLoggerMethods(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	l := NewZerologLogger("test")
	if l == nil {
		t.Fatalf("nil logger")
	}
	l.Debugf("debug %d", 1)
	l.Debugw("debug", map[string]any{"k": 1})
	l.Infof("info %s", "test")
	l.Infow("info", map[string]any{"k": 2})
	l.Warnf("warn")
	l.Errorf("error")
}

func TestZerologLoggerFieldsAndLevel(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("LOG_LEVEL", "warn")
	var buf bytes.Buffer
	l := NewZerologLoggerTo(&buf, "search")
	l.Infow("hidden", map[string]any{"nodes": 3})
	l.Warnf("shown %d", 7)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &rec))
	assert.Equal(t, "search", rec["component"])
	assert.Equal(t, "shown 7", rec["message"])
	assert.Equal(t, "warn", rec["level"])
}

func TestConfigureOverridesEnv(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("LOG_LEVEL", "error")
	require.NoError(t, Configure("debug", false))
	t.Cleanup(func() { _ = Configure("", false) })

	var buf bytes.Buffer
	l := NewZerologLoggerTo(&buf, "cfg")
	l.Debugf("visible")
	assert.Contains(t, buf.String(), `"level":"debug"`)

	require.NoError(t, Configure("", true))
	buf.Reset()
	NewZerologLoggerTo(&buf, "cfg").Errorf("boom")
	assert.NotContains(t, buf.String(), `"level"`)
	assert.Contains(t, buf.String(), "boom")

	assert.Error(t, Configure("loud", false))
}
