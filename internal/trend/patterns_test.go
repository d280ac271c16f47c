package trend

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/strideworks/formsync/internal/model"
)

func geo(width, height float64, flat bool, ceiling *float64) model.RoomGeometry {
	return model.RoomGeometry{
		Width:         width,
		Height:        height,
		Area:          width * height,
		CeilingHeight: ceiling,
		IsFlat:        flat,
	}
}

func ceilingOf(v float64) *float64 { return &v }

func TestRecommendPatterns(t *testing.T) {
	t.Run("spacious flat room gets all floor patterns", func(t *testing.T) {
		rec := RecommendPatterns(geo(3, 3, true, nil), "football")

		assert.ElementsMatch(t,
			[]string{PatternDribbleBox, PatternMicroLadder, PatternFigure8},
			rec.RecommendedPatterns)
		assert.Empty(t, rec.SafetyWarnings)
		assert.Equal(t, 1.0, rec.Adaptations.ToleranceMultiplier)
		assert.False(t, rec.Adaptations.ReducedTargetCount)
		assert.False(t, rec.Adaptations.NoOverheadMovements)
	})

	t.Run("confined room widens tolerances", func(t *testing.T) {
		rec := RecommendPatterns(geo(1.5, 1.5, true, nil), "football")

		assert.Contains(t, rec.SafetyWarnings, WarnConfinedSpace)
		assert.Equal(t, 1.5, rec.Adaptations.ToleranceMultiplier)
		assert.True(t, rec.Adaptations.ReducedTargetCount)
		assert.Empty(t, rec.RecommendedPatterns)
	})

	t.Run("uneven floor drops dribble box", func(t *testing.T) {
		rec := RecommendPatterns(geo(3, 3, false, nil), "football")

		assert.NotContains(t, rec.RecommendedPatterns, PatternDribbleBox)
		assert.Contains(t, rec.RecommendedPatterns, PatternMicroLadder)
		assert.Contains(t, rec.RecommendedPatterns, PatternFigure8)
	})

	t.Run("single long dimension still fits a ladder", func(t *testing.T) {
		rec := RecommendPatterns(geo(4, 1, true, nil), "football")

		assert.Equal(t, []string{PatternMicroLadder}, rec.RecommendedPatterns)
		assert.Contains(t, rec.SafetyWarnings, WarnConfinedSpace)
	})

	t.Run("low ceiling forces seated control", func(t *testing.T) {
		rec := RecommendPatterns(geo(3, 3, true, ceilingOf(2.1)), "football")

		assert.Contains(t, rec.SafetyWarnings, WarnLowCeiling)
		assert.Contains(t, rec.RecommendedPatterns, PatternSeatedControl)
	})

	t.Run("basketball under low ceiling bans overhead work", func(t *testing.T) {
		rec := RecommendPatterns(geo(3, 3, true, ceilingOf(2.5)), "basketball")

		assert.Contains(t, rec.SafetyWarnings, WarnInsufficientClearance)
		assert.True(t, rec.Adaptations.NoOverheadMovements)
		// 2.5 is above the seated-control cutoff, so no low-ceiling warning.
		assert.NotContains(t, rec.SafetyWarnings, WarnLowCeiling)
	})

	t.Run("basketball with unmeasured ceiling assumes clearance", func(t *testing.T) {
		rec := RecommendPatterns(geo(3, 3, true, nil), "basketball")

		assert.Empty(t, rec.SafetyWarnings)
		assert.False(t, rec.Adaptations.NoOverheadMovements)
	})

	t.Run("rules stack in a cramped low room", func(t *testing.T) {
		rec := RecommendPatterns(geo(1.9, 1.9, true, ceilingOf(2.2)), "basketball")

		assert.Equal(t, []string{PatternFigure8, PatternSeatedControl}, rec.RecommendedPatterns)
		assert.Len(t, rec.SafetyWarnings, 3)
		assert.Equal(t, 1.5, rec.Adaptations.ToleranceMultiplier)
		assert.True(t, rec.Adaptations.ReducedTargetCount)
		assert.True(t, rec.Adaptations.NoOverheadMovements)
	})
}
