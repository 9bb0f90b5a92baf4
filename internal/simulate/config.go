// Package simulate drives a running attune server over HTTP with synthetic
// listeners, then checks that the server's session metrics account for
// every reaction it accepted.
package simulate

import "time"

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL    string        // Base URL of the service
	Sessions   int           // Number of sessions to create
	Listeners  int           // Listeners joining each session
	Reactions  int           // Reactions sent by each listener
	Tracks     int           // Synthetic catalog size to draw track ids from
	Workers    int           // Number of concurrent workers
	Timeout    time.Duration // HTTP request timeout
	Seed       int64         // Seed for the reaction plan
	OutputFile string        // Optional JSON report file
	KeepAlive  bool          // Leave sessions running when done
	Verbose    bool          // Enable verbose logging
}

// Planned is one reaction to send.
type Planned struct {
	Session  int    `json:"session"`
	Listener int    `json:"listener"`
	TrackID  string `json:"trackId"`
	// Sentiment uses the wire names, e.g. "like".
	Sentiment string `json:"sentiment"`
	Intensity int    `json:"intensity,omitempty"`
}

// SessionReport is the server's view of one simulated session.
type SessionReport struct {
	SessionID       string   `json:"sessionId"`
	Accepted        int      `json:"accepted"`
	TotalReactions  int      `json:"totalReactions"`
	PositivityRatio float64  `json:"positivityRatio"`
	Engagement      float64  `json:"averageEngagement"`
	TracksPlayed    int      `json:"tracksPlayed"`
	Recommendations []string `json:"recommendations"`
}

// Stats holds run statistics.
type Stats struct {
	SessionsCreated    int
	ListenersJoined    int
	ReactionsPlanned   int
	ReactionsSubmitted int
	ReactionsAccepted  int
	ReactionsFailed    int
	Sessions           []SessionReport
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}
