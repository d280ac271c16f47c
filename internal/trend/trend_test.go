package trend

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/strideworks/formsync/internal/model"
)

func scores(vals ...float64) []model.SessionStats {
	out := make([]model.SessionStats, len(vals))
	for i, v := range vals {
		out[i] = model.SessionStats{TotalScore: v}
	}
	return out
}

func incidents(counts ...int) []model.SessionStats {
	out := make([]model.SessionStats, len(counts))
	for i, n := range counts {
		out[i] = model.SessionStats{TotalScore: 70, IncidentCount: n}
	}
	return out
}

func TestScoreTrend(t *testing.T) {
	tests := []struct {
		name    string
		history []model.SessionStats
		want    Direction
	}{
		{name: "empty", history: nil, want: InsufficientData},
		{name: "single session", history: scores(90), want: InsufficientData},
		{name: "two sessions improving", history: scores(89, 80), want: Improving},
		{name: "two sessions stable", history: scores(85, 80), want: Stable},
		{name: "two sessions declining", history: scores(70, 80), want: Declining},
		{name: "exactly at upper threshold is stable", history: scores(88, 80), want: Stable},
		{name: "exactly at lower threshold is stable", history: scores(72, 80), want: Stable},
		{
			name:    "long history uses five most recent",
			history: scores(95, 94, 93, 92, 91, 60, 60, 60),
			want:    Improving,
		},
		{
			name:    "recent slump in long history",
			history: scores(50, 52, 48, 51, 49, 90, 91, 89),
			want:    Declining,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ScoreTrend(tt.history))
		})
	}
}

func TestSafetyTrend(t *testing.T) {
	tests := []struct {
		name    string
		history []model.SessionStats
		want    Direction
	}{
		{name: "single session", history: incidents(3), want: InsufficientData},
		{name: "fewer incidents is improving", history: incidents(1, 4), want: Improving},
		{name: "more incidents is declining", history: incidents(5, 2), want: Declining},
		{name: "same rate is stable", history: incidents(2, 2), want: Stable},
		{name: "both clean is stable", history: incidents(0, 0), want: Stable},
		{
			// Older bucket has zero incidents; any recent incident is a
			// regression because recentRate > 0*1.2.
			name:    "incidents after a clean history",
			history: incidents(1, 0),
			want:    Declining,
		},
		{name: "clean recent after incidents", history: incidents(0, 3), want: Improving},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SafetyTrend(tt.history))
		})
	}
}

func TestWeakAreas(t *testing.T) {
	t.Run("declining score flags technique", func(t *testing.T) {
		areas := WeakAreas(scores(60, 80))
		assert.Contains(t, areas, "technique_consistency")
	})

	t.Run("rising incidents flag spatial awareness", func(t *testing.T) {
		areas := WeakAreas(incidents(5, 1))
		assert.Contains(t, areas, "spatial_awareness")
	})

	t.Run("low absolute score flags fundamentals", func(t *testing.T) {
		areas := WeakAreas(scores(55, 54))
		assert.Equal(t, []string{"fundamentals"}, areas)
	})

	t.Run("healthy history flags nothing", func(t *testing.T) {
		assert.Empty(t, WeakAreas(scores(85, 84)))
	})
}
