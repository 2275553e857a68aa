package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		name      string
		logger    Logger
		wantInfo  bool
		wantDebug bool
	}{
		{name: "quiet", logger: Logger{}},
		{name: "verbose", logger: Logger{Verbose: true}, wantInfo: true},
		{name: "debug", logger: Logger{Debug: true}, wantInfo: true, wantDebug: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out, errOut bytes.Buffer
			l := tt.logger
			l.Out = &out
			l.Err = &errOut

			l.Infof("info %d", 1)
			l.Debugf("debug %d", 2)
			l.WarnfAlways("always %d", 3)

			if got := strings.Contains(out.String(), "info 1"); got != tt.wantInfo {
				t.Errorf("info printed = %v, want %v", got, tt.wantInfo)
			}
			if got := strings.Contains(out.String(), "debug 2"); got != tt.wantDebug {
				t.Errorf("debug printed = %v, want %v", got, tt.wantDebug)
			}
			if !strings.Contains(errOut.String(), "always 3") {
				t.Errorf("WarnfAlways output missing: %q", errOut.String())
			}
		})
	}
}

func TestErrorfAndReturn(t *testing.T) {
	var errOut bytes.Buffer
	l := Logger{Err: &errOut}

	err := l.ErrorfAndReturn("failed to open %s", "vault")
	if err == nil || err.Error() != "failed to open vault" {
		t.Fatalf("unexpected error: %v", err)
	}
	if errOut.Len() != 0 {
		t.Errorf("non-debug logger should not print errors, got %q", errOut.String())
	}
}
