package models

import "time"

// LeaderboardEntry is derived state: recomputed from the submitted attempts
// of a definition on every new submission, never stored as authoritative.
type LeaderboardEntry struct {
	Rank             int       `json:"rank"`
	OwnerID          string    `json:"owner_id"`
	DisplayName      string    `json:"display_name,omitempty"`
	Score            int       `json:"score"`
	Percentage       float64   `json:"percentage"`
	TimeTakenSeconds int       `json:"time_taken_seconds"`
	SubmittedAt      time.Time `json:"submitted_at"`
}
