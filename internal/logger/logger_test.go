package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	cases := []struct {
		name      string
		json      bool
		debug     bool
		wantDebug bool
	}{
		{name: "console info", json: false, debug: false, wantDebug: false},
		{name: "json debug", json: true, debug: true, wantDebug: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			log, err := New(tc.json, tc.debug)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := log.Core().Enabled(zapcore.DebugLevel); got != tc.wantDebug {
				t.Fatalf("debug enabled: expected %v, got %v", tc.wantDebug, got)
			}
			if !log.Core().Enabled(zapcore.InfoLevel) {
				t.Fatalf("info must always be enabled")
			}
		})
	}
}
