package room

import (
	"time"

	"github.com/strideworks/formsync/internal/model"
)

// mergeRule applies one field of a sync payload onto the stored session.
// Rules are independent: each fires only when its field is present in the
// payload, and a field the payload omits leaves the stored value untouched.
type mergeRule struct {
	field string
	apply func(s *model.RoomSession, req model.SyncRoomSessionRequest)
}

// mergeRules is the per-field merge policy table.
//
// Two distinct semantics are in play and must not be conflated:
//   - quality metrics (average_fps, tracking_quality) take max(incoming,
//     current) — a platform with better sensing never regresses the record;
//   - assessments and environment fields (safety_score, obstacle_count,
//     lighting, reflective surfaces, calibration) take the incoming value,
//     because the latest observation supersedes the older one.
var mergeRules = []mergeRule{
	{"average_fps", func(s *model.RoomSession, req model.SyncRoomSessionRequest) {
		if req.AverageFPS != nil && *req.AverageFPS > s.AverageFPS {
			s.AverageFPS = *req.AverageFPS
		}
	}},
	{"tracking_quality", func(s *model.RoomSession, req model.SyncRoomSessionRequest) {
		if req.TrackingQuality != nil && *req.TrackingQuality > s.TrackingQuality {
			s.TrackingQuality = *req.TrackingQuality
		}
	}},
	{"safety_score", func(s *model.RoomSession, req model.SyncRoomSessionRequest) {
		if req.SafetyScore != nil {
			s.SafetyScore = *req.SafetyScore
		}
	}},
	{"room_center", func(s *model.RoomSession, req model.SyncRoomSessionRequest) {
		if len(req.RoomCenter) == 3 {
			s.Calibration.RoomCenter = req.RoomCenter
		}
	}},
	{"scale_factor", func(s *model.RoomSession, req model.SyncRoomSessionRequest) {
		if req.ScaleFactor != nil {
			s.Calibration.ScaleFactor = *req.ScaleFactor
		}
	}},
	{"obstacle_count", func(s *model.RoomSession, req model.SyncRoomSessionRequest) {
		if req.ObstacleCount != nil {
			s.ObstacleCount = *req.ObstacleCount
		}
	}},
	{"lighting_conditions", func(s *model.RoomSession, req model.SyncRoomSessionRequest) {
		if req.LightingConditions != nil {
			s.LightingConditions = *req.LightingConditions
		}
	}},
	{"reflective_surfaces", func(s *model.RoomSession, req model.SyncRoomSessionRequest) {
		if req.ReflectiveSurfaces != nil {
			s.ReflectiveSurfaces = *req.ReflectiveSurfaces
		}
	}},
}

// applySync merges one platform's partial update onto the stored session.
// Always records which platform reported last and stamps updated_at, even
// when every data field was omitted.
func applySync(s *model.RoomSession, req model.SyncRoomSessionRequest, now time.Time) {
	for _, rule := range mergeRules {
		rule.apply(s, req)
	}
	s.Platform = req.Platform
	s.UpdatedAt = now
}
