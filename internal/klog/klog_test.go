package klog

import (
	"bytes"
	"strings"
	"testing"
)

func TestLoggerDropsBelowFloor(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelWarn, "pmm")

	l.Debug("alloc at %#x", 0x1000)
	l.Info("page mapped")
	if buf.Len() != 0 {
		t.Fatalf("expected nothing logged below floor, got %q", buf.String())
	}

	l.Warn("low memory")
	if !strings.Contains(buf.String(), "pmm: WARN: low memory") {
		t.Fatalf("unexpected log line: %q", buf.String())
	}
}

func TestWithTagSharesWriterAndFloor(t *testing.T) {
	var buf bytes.Buffer
	base := New(&buf, LevelInfo, "kernel")
	child := base.WithTag("sched")

	child.Info("thread spawned")
	if !strings.Contains(buf.String(), "sched: INFO: thread spawned") {
		t.Fatalf("unexpected log line: %q", buf.String())
	}

	base.Debug("should be dropped")
	if strings.Contains(buf.String(), "should be dropped") {
		t.Fatalf("floor not shared: %q", buf.String())
	}
}

func TestSetFloorAdjustsThreshold(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelError, "x")
	l.Warn("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected drop, got %q", buf.String())
	}
	l.SetFloor(LevelWarn)
	l.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Fatalf("expected line after floor lowered, got %q", buf.String())
	}
}
