// Package trend derives momentum indicators from a user's completed session
// history and proposes space-constrained drill patterns from room geometry.
// Everything here is a pure function over in-memory inputs.
package trend

import "github.com/strideworks/formsync/internal/model"

// Direction is a three-valued momentum summary.
type Direction string

const (
	Improving        Direction = "improving"
	Declining        Direction = "declining"
	Stable           Direction = "stable"
	InsufficientData Direction = "insufficient_data"
)

// recentWindow is the maximum number of sessions in the "recent" bucket.
const recentWindow = 5

// splitHistory buckets a most-recent-first history into recent and older.
// The recent bucket takes the first min(5, N-1) sessions, which guarantees a
// non-empty older bucket for any N >= 2.
func splitHistory(history []model.SessionStats) (recent, older []model.SessionStats) {
	k := len(history) - 1
	if k > recentWindow {
		k = recentWindow
	}
	return history[:k], history[k:]
}

// ScoreTrend compares mean total score in the recent bucket against the older
// bucket. history must be ordered most-recent-first. A recent mean more than
// 10% above the older mean is improving; more than 10% below is declining.
func ScoreTrend(history []model.SessionStats) Direction {
	if len(history) < 2 {
		return InsufficientData
	}
	recent, older := splitHistory(history)

	recentMean := meanScore(recent)
	olderMean := meanScore(older)

	switch {
	case recentMean > olderMean*1.1:
		return Improving
	case recentMean < olderMean*0.9:
		return Declining
	default:
		return Stable
	}
}

// SafetyTrend compares mean incidents-per-session with the inverted sense:
// fewer incidents is better. A recent rate below 0.8x the older rate is
// improving; above 1.2x is declining.
func SafetyTrend(history []model.SessionStats) Direction {
	if len(history) < 2 {
		return InsufficientData
	}
	recent, older := splitHistory(history)

	recentRate := incidentRate(recent)
	olderRate := incidentRate(older)

	switch {
	case recentRate < olderRate*0.8:
		return Improving
	case recentRate > olderRate*1.2:
		return Declining
	default:
		return Stable
	}
}

func meanScore(bucket []model.SessionStats) float64 {
	if len(bucket) == 0 {
		return 0
	}
	var sum float64
	for _, s := range bucket {
		sum += s.TotalScore
	}
	return sum / float64(len(bucket))
}

func incidentRate(bucket []model.SessionStats) float64 {
	if len(bucket) == 0 {
		return 0
	}
	var total int
	for _, s := range bucket {
		total += s.IncidentCount
	}
	return float64(total) / float64(len(bucket))
}

// Report bundles both trend directions for one user.
type Report struct {
	ScoreTrend       Direction `json:"score_trend"`
	SafetyTrend      Direction `json:"safety_trend"`
	SessionsAnalyzed int       `json:"sessions_analyzed"`
}

// Analyze computes both trends over the same history.
func Analyze(history []model.SessionStats) Report {
	return Report{
		ScoreTrend:       ScoreTrend(history),
		SafetyTrend:      SafetyTrend(history),
		SessionsAnalyzed: len(history),
	}
}

// WeakAreas inspects the history and names the areas worth drilling, used to
// key drill recommendations from the inference service. Score momentum and
// incident momentum map onto coarse area labels.
func WeakAreas(history []model.SessionStats) []string {
	var areas []string
	if ScoreTrend(history) == Declining {
		areas = append(areas, "technique_consistency")
	}
	if SafetyTrend(history) == Declining {
		areas = append(areas, "spatial_awareness")
	}
	if len(areas) == 0 && len(history) > 0 && history[0].TotalScore < 60 {
		areas = append(areas, "fundamentals")
	}
	return areas
}
