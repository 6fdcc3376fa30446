package monitoring

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetLogger(t *testing.T) {
	// Save original loggers
	origLogf, origWarnf := Logf, Warnf
	defer func() { Logf, Warnf = origLogf, origWarnf }()

	// Test setting a custom logger
	called := 0
	SetLogger(func(format string, v ...interface{}) {
		called++
	})
	Logf("test message")
	Warnf("test warning")

	if called != 2 {
		t.Errorf("custom logger called %d times, want 2", called)
	}

	// Now set to nil and verify it doesn't call our logger
	called = 0
	SetLogger(nil)
	Logf("test")
	Warnf("test")
	if called != 0 {
		t.Error("No-op logger should not have triggered callback")
	}
}

func TestUseZap(t *testing.T) {
	origLogf, origWarnf := Logf, Warnf
	defer func() { Logf, Warnf = origLogf, origWarnf }()

	core, logs := observer.New(zapcore.InfoLevel)
	UseZap(zap.New(core))

	Logf("analysed %d wells", 96)
	Warnf("well %s skipped", "H12")

	entries := logs.AllUntimed()
	if len(entries) != 2 {
		t.Fatalf("got %d log entries, want 2", len(entries))
	}
	if entries[0].Message != "analysed 96 wells" || entries[0].Level != zapcore.InfoLevel {
		t.Errorf("unexpected first entry: %+v", entries[0].Entry)
	}
	if entries[1].Message != "well H12 skipped" || entries[1].Level != zapcore.WarnLevel {
		t.Errorf("unexpected second entry: %+v", entries[1].Entry)
	}

	UseZap(nil)
	Logf("muted")
	if logs.Len() != 2 {
		t.Error("nil zap logger should mute logging")
	}
}

func TestLogf_Default(t *testing.T) {
	// Test that Logf is not nil by default
	if Logf == nil || Warnf == nil {
		t.Error("Logf and Warnf should not be nil by default")
	}
}
