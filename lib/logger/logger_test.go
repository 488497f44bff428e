package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestStandardLoggerLevels(t *testing.T) {
	var out bytes.Buffer
	l := NewStandardLogger(&out)

	l.Debugf("hidden %d", 1)
	l.Infof("shown %d", 2)
	l.Errorf("also shown")

	s := out.String()
	if strings.Contains(s, "hidden") {
		t.Errorf("debug line should be suppressed at info verbosity: %q", s)
	}
	if !strings.Contains(s, "INFO:  shown 2") {
		t.Errorf("missing info line: %q", s)
	}
	if !strings.Contains(s, "ERROR: also shown") {
		t.Errorf("missing error line: %q", s)
	}
}

func TestVerboseLogger(t *testing.T) {
	var out bytes.Buffer
	l := NewVerboseLogger(&out)

	l.Debugf("dbg")
	if !strings.Contains(out.String(), "DEBUG: dbg") {
		t.Errorf("verbose logger must emit debug lines: %q", out.String())
	}
}

func TestWithPrefix(t *testing.T) {
	var out bytes.Buffer
	l := NewStandardLogger(&out).WithPrefix("gateway: ")

	l.Infof("dialing")
	if !strings.Contains(out.String(), "gateway: ") {
		t.Errorf("prefix missing: %q", out.String())
	}
}

func TestBufferLogger(t *testing.T) {
	bl := NewBufferLogger()
	bl.Warnf("w %s", "x")
	bl.Infof("i")

	s := bl.String()
	if !strings.Contains(s, "w x") || !strings.Contains(s, "i") {
		t.Errorf("buffer lost lines: %q", s)
	}
}
