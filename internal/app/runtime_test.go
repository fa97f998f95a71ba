package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	_ "github.com/odyssey-erp/backoffice/testing"
)

func TestInTestMode(t *testing.T) {
	require.True(t, InTestMode())

	for value, want := range map[string]bool{"0": false, "": false, "yes": false, "1": true, "true": true} {
		t.Setenv(testModeEnv, value)
		require.Equal(t, want, InTestMode(), "value %q", value)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := &Config{FromEmail: "no-reply@example.com", PODueDays: 7, POBatchInterval: 30 * time.Minute, ResetTokenTTL: 30 * time.Minute}
	require.NoError(t, cfg.validate())

	bad := *cfg
	bad.PODueDays = 0
	require.Error(t, bad.validate())

	bad = *cfg
	bad.POBatchInterval = 0
	require.Error(t, bad.validate())

	bad = *cfg
	bad.FromEmail = ""
	require.Error(t, bad.validate())

	require.Equal(t, 7*24*60, int(cfg.PODueIn().Minutes()))
	require.False(t, cfg.IsProduction())
}

func TestLoggerFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &Config{AppName: "Back Office", AppEnv: "staging", LogFormat: "json", LogLevel: "warn"})
	logger.Info("hidden")
	logger.Warn("batch skipped", slog.String("reason", "lock held"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
	require.Equal(t, "batch skipped", record["msg"])
	require.Equal(t, "staging", record["env"])
	require.Equal(t, "lock held", record["reason"])

	require.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	require.Equal(t, slog.LevelInfo, parseLevel(""))
}
