package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/property-matcher/internal/matching"
	"github.com/spigell/property-matcher/internal/metrics"
)

func TestFatalWritesMetrics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "property_matcher.prom")
	core, logs := observer.New(zapcore.DebugLevel)

	s := &session{
		config:   &Config{MetricsFile: path},
		recorder: metrics.NewRecorder(),
	}
	s.logger = zap.New(core, zap.WithFatalHook(s.fatalHook(zapcore.WriteThenPanic)))
	s.recorder.ObserveRejected(matching.Forward, "invalid")

	assert.Panics(t, func() { s.logger.Fatal("ranking listings") })

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `property_matcher_candidates_rejected_total{direction="forward"} 1`)
	assert.Equal(t, 1, logs.FilterMessage("metrics written").Len())
	assert.Equal(t, 1, logs.FilterMessage("ranking listings").Len())
}

func TestFatalWithoutMetricsFile(t *testing.T) {
	s := &session{config: &Config{}, recorder: metrics.NewRecorder()}
	s.logger = zap.New(zapcore.NewNopCore(), zap.WithFatalHook(s.fatalHook(zapcore.WriteThenPanic)))

	assert.Panics(t, func() { s.logger.Fatal("loading the snapshot") })
}
