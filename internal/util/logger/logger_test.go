package logger

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	SetOutput(buf)
	defer SetOutput(os.Stderr)

	log := Logger("test")
	log.Info("test message", "key", "value")

	output := buf.String()
	if !strings.Contains(output, "test message") {
		t.Errorf("expected log message in buffer, got: %s", output)
	}
	if !strings.Contains(output, "key=value") {
		t.Errorf("expected key=value in buffer, got: %s", output)
	}
	if !strings.Contains(output, "subsystem=test") {
		t.Errorf("expected subsystem=test in buffer, got: %s", output)
	}
}

func TestSetOutput_ExistingLogger(t *testing.T) {
	log := Logger("test2")

	buf := &bytes.Buffer{}
	SetOutput(buf)
	defer SetOutput(os.Stderr)

	log.Info("after switch", "key", "value")

	output := buf.String()
	if !strings.Contains(output, "after switch") {
		t.Errorf("expected log message in buffer, got: %s", output)
	}
}

func TestAddSink(t *testing.T) {
	main := &bytes.Buffer{}
	SetOutput(main)
	defer SetOutput(os.Stderr)

	sink := &bytes.Buffer{}
	remove := AddSink(sink)

	log := Logger("sinktest")
	log.Info("mirrored")
	remove()
	log.Info("not mirrored")

	assert.Contains(t, sink.String(), "mirrored")
	assert.NotContains(t, sink.String(), "not mirrored")
	assert.Contains(t, main.String(), "not mirrored")
}

func TestSetLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	SetOutput(buf)
	defer SetOutput(os.Stderr)

	log := Logger("leveltest")
	SetLevel("leveltest", slog.LevelWarn)
	log.Info("hidden")
	log.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	// 派生 Logger 共享级别
	child := log.With("k", "v")
	SetLevel("leveltest", slog.LevelDebug)
	child.Debug("child debug")
	assert.Contains(t, buf.String(), "child debug")
}

func TestParseLevelConfig(t *testing.T) {
	cfg := &Config{DefaultLevel: slog.LevelInfo, SubsystemLevels: map[string]slog.Level{}}
	parseLevelConfig(cfg, "relay=debug, connmgr=warn ,error,bogus=nope")

	assert.Equal(t, slog.LevelError, cfg.DefaultLevel)
	assert.Equal(t, slog.LevelDebug, cfg.LevelForSubsystem("relay"))
	assert.Equal(t, slog.LevelWarn, cfg.LevelForSubsystem("connmgr"))
	assert.Equal(t, slog.LevelError, cfg.LevelForSubsystem("dispatch"))
	_, ok := cfg.SubsystemLevels["bogus"]
	assert.False(t, ok)
}

func TestLevelFromDebug(t *testing.T) {
	assert.Equal(t, slog.LevelError, LevelFromDebug(-3))
	assert.Equal(t, slog.LevelError, LevelFromDebug(0))
	assert.Equal(t, slog.LevelWarn, LevelFromDebug(1))
	assert.Equal(t, slog.LevelInfo, LevelFromDebug(2))
	assert.Equal(t, slog.LevelDebug, LevelFromDebug(3))
	assert.Equal(t, slog.LevelDebug, LevelFromDebug(9))
}

func TestParseFormat(t *testing.T) {
	assert.Equal(t, FormatJSON, ParseFormat("JSON"))
	assert.Equal(t, FormatText, ParseFormat("text"))
	assert.Equal(t, FormatText, ParseFormat(""))
}
