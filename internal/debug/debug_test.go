package debug

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func capture(t *testing.T, level int) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	Init(level)
	t.Cleanup(func() {
		Init(LevelOff)
	})
	return &buf
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t, LevelLive)

	Info("sent %d", 1)
	Live("state %s", "auto")
	Verbose("hidden")
	Trace("hidden")
	GPIO("Set", 17, true)

	out := buf.String()
	if !strings.Contains(out, "[INFO] sent 1") {
		t.Errorf("missing info line in %q", out)
	}
	if !strings.Contains(out, "[LIVE] state auto") {
		t.Errorf("missing live line in %q", out)
	}
	if strings.Contains(out, "hidden") || strings.Contains(out, "[GPIO]") {
		t.Errorf("levels above 2 leaked: %q", out)
	}
	if !IsEnabled(LevelLive) || IsEnabled(LevelVerbose) {
		t.Errorf("IsEnabled disagrees with level %d", Level())
	}
}

func TestOffIsSilent(t *testing.T) {
	buf := capture(t, LevelOff)
	Error(errors.New("boom"))
	Value("x", 1)
	if buf.Len() != 0 {
		t.Errorf("level 0 wrote %q", buf.String())
	}
}

func TestErrorPrefix(t *testing.T) {
	buf := capture(t, LevelInfo)
	Error(errors.New("usb stall"))
	if !strings.Contains(buf.String(), "[ERROR] usb stall") {
		t.Errorf("got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "[OpalFocus]") {
		t.Errorf("missing prefix in %q", buf.String())
	}
}
