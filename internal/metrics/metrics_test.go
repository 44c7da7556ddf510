package metrics

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/property-matcher/internal/estate"
	"github.com/spigell/property-matcher/internal/matching"
)

func TestRecorderObservesRanking(t *testing.T) {
	rec := NewRecorder()
	engine := matching.NewEngine(matching.DefaultPolicy(), nil)
	engine.SetObserver(rec)

	profile := estate.RequirementProfile{ID: "p1", ListingType: estate.ListingTypeSale, Locations: []string{"Lisboa"}}
	listings := []estate.Listing{
		{ID: "l1", ListingType: estate.ListingTypeSale, City: "Lisboa"},
		{ID: "l2", ListingType: estate.ListingTypeSale, City: "Porto"},
		{ID: "bad", ListingType: estate.ListingTypeSale, Price: -1},
	}

	_, err := engine.RankListingsForProfile(context.Background(), profile, listings, nil, 10)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.CandidatesScored.WithLabelValues("forward", "high")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.CandidatesScored.WithLabelValues("forward", "medium")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.CandidatesRejected.WithLabelValues("forward")))
	assert.Equal(t, 2.0, testutil.ToFloat64(rec.RankingResults.WithLabelValues("forward")))
	assert.Equal(t, 1, testutil.CollectAndCount(rec.RankingDuration))
}

func TestRecorderAugmentationOutcomes(t *testing.T) {
	rec := NewRecorder()
	rec.ObserveAugmentation(true)
	rec.ObserveAugmentation(false)
	rec.ObserveAugmentation(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.Augmentations.WithLabelValues("available")))
	assert.Equal(t, 2.0, testutil.ToFloat64(rec.Augmentations.WithLabelValues("unavailable")))
}

func TestRecordersDoNotShareState(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	a.ObserveRejected(matching.Reverse, "bad")

	assert.Equal(t, 0.0, testutil.ToFloat64(b.CandidatesRejected.WithLabelValues("reverse")))
}

func TestWriteTextfile(t *testing.T) {
	rec := NewRecorder()
	rec.ObserveRanking(matching.Reverse, 3*time.Millisecond, 5, 2)

	path := filepath.Join(t.TempDir(), "property_matcher.prom")
	require.NoError(t, rec.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `property_matcher_ranking_results{direction="reverse"} 2`))
}
