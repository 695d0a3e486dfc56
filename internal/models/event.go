package models

import "time"

// SessionEventType 会话事件类型
type SessionEventType string

const (
	SessionEventStarted SessionEventType = "session_started"
	SessionEventEnded   SessionEventType = "session_ended"
)

// SessionEvent 发布到 Redis Streams 的会话事件
type SessionEvent struct {
	Type      SessionEventType `json:"type"`
	SessionID string           `json:"session_id"`
	StartTime time.Time        `json:"start_time"`
	EndTime   *time.Time       `json:"end_time,omitempty"`
	Quality   Quality          `json:"quality,omitempty"`
	Score     float64          `json:"score,omitempty"`
	Samples   int              `json:"samples,omitempty"`
}
