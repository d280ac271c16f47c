package trend

import "github.com/strideworks/formsync/internal/model"

// Pattern names understood by the clients.
const (
	PatternDribbleBox    = "dribble_box"
	PatternMicroLadder   = "micro_ladder"
	PatternFigure8       = "figure_8"
	PatternSeatedControl = "seated_control"
)

// Warnings attached to a recommendation.
const (
	WarnLowCeiling            = "ceiling below 2.3m: overhead work unsafe, seated drills recommended"
	WarnConfinedSpace         = "floor area below 4m²: widen movement tolerances and reduce target count"
	WarnInsufficientClearance = "ceiling below 2.8m: no overhead basketball movements"
)

// defaultCeilingHeight is assumed when the client did not measure one.
const defaultCeilingHeight = 3.0

// Adaptations are rule-driven tweaks the client applies to the chosen drill.
type Adaptations struct {
	ToleranceMultiplier float64 `json:"tolerance_multiplier"`
	ReducedTargetCount  bool    `json:"reduced_target_count"`
	NoOverheadMovements bool    `json:"no_overhead_movements"`
}

// Recommendation is the outcome of evaluating the pattern rules for a room.
type Recommendation struct {
	RecommendedPatterns []string    `json:"recommended_patterns"`
	SafetyWarnings      []string    `json:"safety_warnings"`
	Adaptations         Adaptations `json:"adaptations"`
}

// RecommendPatterns evaluates all geometry rules for the given room and sport.
// Rules are additive: each one that fires contributes its pattern, warning, or
// adaptation independently, and every rule is always evaluated.
func RecommendPatterns(geo model.RoomGeometry, sport string) Recommendation {
	rec := Recommendation{
		RecommendedPatterns: []string{},
		SafetyWarnings:      []string{},
		Adaptations:         Adaptations{ToleranceMultiplier: 1.0},
	}

	if geo.Width >= 2.5 && geo.Height >= 2.5 && geo.IsFlat {
		rec.RecommendedPatterns = append(rec.RecommendedPatterns, PatternDribbleBox)
	}
	if geo.Width >= 2.0 || geo.Height >= 2.0 {
		rec.RecommendedPatterns = append(rec.RecommendedPatterns, PatternMicroLadder)
	}
	if geo.Width >= 1.8 && geo.Height >= 1.8 {
		rec.RecommendedPatterns = append(rec.RecommendedPatterns, PatternFigure8)
	}

	if geo.CeilingHeight != nil && *geo.CeilingHeight < 2.3 {
		rec.SafetyWarnings = append(rec.SafetyWarnings, WarnLowCeiling)
		rec.RecommendedPatterns = append(rec.RecommendedPatterns, PatternSeatedControl)
	}

	if geo.Width*geo.Height < 4.0 {
		rec.SafetyWarnings = append(rec.SafetyWarnings, WarnConfinedSpace)
		rec.Adaptations.ToleranceMultiplier = 1.5
		rec.Adaptations.ReducedTargetCount = true
	}

	if sport == "basketball" {
		ceiling := defaultCeilingHeight
		if geo.CeilingHeight != nil {
			ceiling = *geo.CeilingHeight
		}
		if ceiling < 2.8 {
			rec.SafetyWarnings = append(rec.SafetyWarnings, WarnInsufficientClearance)
			rec.Adaptations.NoOverheadMovements = true
		}
	}

	return rec
}
