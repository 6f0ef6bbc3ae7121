package models

import (
	"encoding/json"
	"time"
)

// SubmissionState tracks the single in-flight wave submission.
type SubmissionState int

const (
	SubmissionIdle SubmissionState = iota
	SubmissionAwaitingSignature
	SubmissionMining
)

func (s SubmissionState) String() string {
	switch s {
	case SubmissionIdle:
		return "idle"
	case SubmissionAwaitingSignature:
		return "awaiting_signature"
	case SubmissionMining:
		return "mining"
	default:
		return "unknown"
	}
}

func (s SubmissionState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *SubmissionState) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "awaiting_signature":
		*s = SubmissionAwaitingSignature
	case "mining":
		*s = SubmissionMining
	default:
		*s = SubmissionIdle
	}
	return nil
}

// Alert is a user-visible failure notification.
type Alert struct {
	ID       string    `json:"id"`
	Message  string    `json:"message"`
	RaisedAt time.Time `json:"raised_at"`
}

// Snapshot is a read-only copy of the view state.
type Snapshot struct {
	Account        string          `json:"account"`
	Connected      bool            `json:"connected"`
	WaveCount      uint64          `json:"wave_count"`
	Waves          []Wave          `json:"waves"`
	Submission     SubmissionState `json:"submission"`
	PendingMessage string          `json:"pending_message"`
	Alert          *Alert          `json:"alert,omitempty"`
	Version        uint64          `json:"version"` // bumped on every mutation
}
