package datastore

import (
	"time"

	"github.com/tphakala/voxrec/internal/recorder"
)

// SessionRecord is one finished capture session.
type SessionRecord struct {
	ID             uint       `gorm:"primaryKey" json:"-"`
	SessionID      string     `gorm:"uniqueIndex:idx_sessions_session_id;size:36" json:"id"`
	Reason         string     `json:"reason"`
	Recorded       bool       `json:"recorded"`
	OutputPath     string     `json:"file"`
	Format         string     `json:"format"`
	Device         string     `json:"device"`
	ArmedAt        time.Time  `json:"armedAt"`
	RecordingStart *time.Time `json:"recordingStart,omitempty"`
	EndedAt        time.Time  `gorm:"index:idx_sessions_ended_at" json:"endedAt"`
	DurationMs     int64      `json:"durationMs"`
	FramesWritten  uint64     `json:"framesWritten"`
	BuffersWritten uint64     `json:"buffersWritten"`
	WriteFailures  uint64     `json:"writeFailures"`
	Cause          string     `json:"cause,omitempty"`
	CreatedAt      time.Time  `json:"-"`
}

// TableName keeps the table name stable across struct renames.
func (SessionRecord) TableName() string {
	return "sessions"
}

// RecordFromSummary maps a session summary to its stored form.
func RecordFromSummary(s *recorder.SessionSummary) SessionRecord {
	rec := SessionRecord{
		SessionID:      s.ID,
		Reason:         string(s.Reason),
		Recorded:       s.Recorded,
		OutputPath:     s.Config.OutputPath,
		Format:         s.Config.Format(),
		Device:         s.Config.DeviceName,
		ArmedAt:        s.ArmedAt,
		EndedAt:        s.EndedAt,
		DurationMs:     s.Duration.Milliseconds(),
		FramesWritten:  s.FramesWritten,
		BuffersWritten: s.BuffersWritten,
		WriteFailures:  s.WriteFailures,
		Cause:          s.Cause,
	}
	if !s.RecordingStart.IsZero() {
		start := s.RecordingStart
		rec.RecordingStart = &start
	}
	return rec
}
