package model

import "time"

// EventType names a session lifecycle event.
type EventType string

// Event types published on the bus.
const (
	EventSessionCreated         EventType = "SESSION_CREATED"
	EventUserJoined             EventType = "USER_JOINED"
	EventUserLeft               EventType = "USER_LEFT"
	EventReactionRecorded       EventType = "REACTION_RECORDED"
	EventTrackChanged           EventType = "TRACK_CHANGED"
	EventSessionEnded           EventType = "SESSION_ENDED"
	EventRecommendationsUpdated EventType = "RECOMMENDATIONS_UPDATED"
	// EventMetrics is pushed to individual subscribers, never published.
	EventMetrics EventType = "SESSION_METRICS"
)

// Event is the envelope every subscriber receives.
type Event struct {
	Type      EventType   `json:"type"`
	SessionID string      `json:"sessionId"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// NewEvent stamps an event.
func NewEvent(t EventType, sessionID string, at time.Time, payload interface{}) Event {
	return Event{Type: t, SessionID: sessionID, Timestamp: at, Payload: payload}
}

// ParticipantPayload accompanies USER_JOINED and USER_LEFT.
type ParticipantPayload struct {
	UserID       string `json:"userId"`
	ProfileID    string `json:"profileId"`
	ConnectionID string `json:"connectionId"`
}

// ReactionPayload accompanies REACTION_RECORDED.
type ReactionPayload struct {
	Reaction   Reaction `json:"reaction"`
	Polarity   string   `json:"polarity"`
	Engagement float64  `json:"engagement"`
}

// RecommendationsPayload accompanies RECOMMENDATIONS_UPDATED.
type RecommendationsPayload struct {
	Mode            string           `json:"mode"`
	TriggerTrackID  string           `json:"triggerTrackId,omitempty"`
	Recommendations []Recommendation `json:"recommendations"`
}
