package log_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fdupoux/fsarchiver-go/log"
)

type bufOutputter struct {
	level log.Level
	buf   bytes.Buffer
}

func (b *bufOutputter) Level() log.Level { return b.level }

func (b *bufOutputter) Output(calldepth int, level log.Level, s string) error {
	if b.level < level {
		return nil
	}
	b.buf.WriteString(s)
	return nil
}

func TestLevelFiltersOutput(t *testing.T) {
	out := &bufOutputter{level: log.Error}
	prev := log.SetOutputter(out)
	defer log.SetOutputter(prev)

	log.Debug.Print("should not appear")
	if out.buf.Len() != 0 {
		t.Fatalf("expected debug message to be filtered, got %q", out.buf.String())
	}

	log.Error.Print("should appear")
	if !strings.Contains(out.buf.String(), "should appear") {
		t.Fatalf("expected error message to be recorded, got %q", out.buf.String())
	}
}

func TestAt(t *testing.T) {
	out := &bufOutputter{level: log.Info}
	prev := log.SetOutputter(out)
	defer log.SetOutputter(prev)

	if !log.At(log.Info) {
		t.Fatalf("expected At(Info) to be true at level Info")
	}
	if log.At(log.Debug) {
		t.Fatalf("expected At(Debug) to be false at level Info")
	}
}

func TestLevelString(t *testing.T) {
	cases := map[log.Level]string{
		log.Off:   "off",
		log.Error: "error",
		log.Info:  "info",
		log.Debug: "debug",
	}
	for level, want := range cases {
		if got := level.String(); got != want {
			t.Fatalf("Level(%d).String() = %q, want %q", level, got, want)
		}
	}
}
