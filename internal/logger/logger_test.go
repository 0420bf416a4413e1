package logger_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/voxrec/internal/logger"
)

func TestSlogLoggerLevels(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelInfo, time.UTC)

	log.Debug("hidden debug")
	log.Trace("hidden trace")
	log.Info("visible info", logger.String("device", "USB Mic"))
	log.Warn("visible warn")
	log.Log(logger.LogLevelDebug, "hidden explicit")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible info")
	assert.Contains(t, out, `device="USB Mic"`)
	assert.Contains(t, out, "visible warn")
}

func TestTraceLevelName(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelTrace, time.UTC)
	log.Trace("buffer processed")

	assert.Contains(t, buf.String(), "level=TRACE")
}

func TestModuleAndFieldAccumulation(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	base := logger.NewSlogLogger(buf, logger.LogLevelDebug, time.UTC)

	capture := base.Module("capture").Module("malgo")
	session := capture.With(logger.String("session_id", "abc"))

	session.Info("opened", logger.Float64("sound_level", 3.14159), logger.Error(errors.New("boom")))
	capture.Info("parent unaffected")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Contains(t, string(lines[0]), "module=capture.malgo")
	assert.Contains(t, string(lines[0]), "session_id=abc")
	assert.Contains(t, string(lines[0]), "sound_level=3.142")
	assert.Contains(t, string(lines[0]), "error=boom")
	assert.NotContains(t, string(lines[1]), "session_id")
}

func TestWithContextTraceID(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelInfo, time.UTC)

	log.WithContext(logger.WithTraceID(context.Background(), "req-7")).Info("handled")
	log.WithContext(context.Background()).Info("untraced")

	out := buf.String()
	assert.Contains(t, out, "trace_id=req-7")
	assert.Equal(t, 1, bytes.Count([]byte(out), []byte("trace_id")))
}

func TestCentralLoggerFileOutput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	mainPath := filepath.Join(dir, "logs", "main.log")
	apiPath := filepath.Join(dir, "logs", "api.log")

	cl, err := logger.NewCentralLogger(&logger.LoggingConfig{
		DefaultLevel: "debug",
		Timezone:     "UTC",
		Console:      &logger.ConsoleOutput{Enabled: false},
		FileOutput: &logger.FileOutput{
			Enabled: true,
			Path:    mainPath,
			Level:   "debug",
			MaxSize: 1,
		},
		ModuleOutputs: map[string]logger.ModuleOutput{
			"api": {Enabled: true, FilePath: apiPath, Level: "info"},
		},
	})
	require.NoError(t, err)

	cl.Module("recorder").Debug("state changed", logger.String("state", "armed"))
	cl.Module("api").Debug("dropped")
	cl.Module("api").Info("request", logger.Int("status", 200))
	require.NoError(t, cl.Close())

	mainRecords := readJSONLines(t, mainPath)
	require.Len(t, mainRecords, 1)
	assert.Equal(t, "recorder", mainRecords[0]["module"])
	assert.Equal(t, "armed", mainRecords[0]["state"])

	apiRecords := readJSONLines(t, apiPath)
	require.Len(t, apiRecords, 1)
	assert.Equal(t, "request", apiRecords[0]["msg"])
	assert.InDelta(t, 200, apiRecords[0]["status"], 0)
}

func TestCentralLoggerRejectsBadTimezone(t *testing.T) {
	t.Parallel()

	_, err := logger.NewCentralLogger(&logger.LoggingConfig{Timezone: "Mars/Olympus"})
	require.Error(t, err)

	_, err = logger.NewCentralLogger(nil)
	require.Error(t, err)
}

func TestGlobalFallback(t *testing.T) {
	t.Parallel()

	require.NotNil(t, logger.Global())
	require.NotNil(t, logger.Global().Module("test"))
}

func readJSONLines(t *testing.T, path string) []map[string]any {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var records []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		records = append(records, rec)
	}
	require.NoError(t, scanner.Err())
	return records
}
