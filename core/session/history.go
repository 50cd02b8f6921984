package session

import (
	"strings"
	"time"
)

type HistoryAction string

const (
	HistoryCreated      HistoryAction = "created"
	HistoryEdited       HistoryAction = "edited"
	HistoryAttached     HistoryAction = "attached"
	HistoryDetached     HistoryAction = "detached"
	HistoryVerified     HistoryAction = "verified"
	HistoryUnverified   HistoryAction = "unverified"
	HistoryReturned     HistoryAction = "returned"
	HistoryTransitioned HistoryAction = "transitioned"
)

// HistoryEntry is one committed mutation of a session. Seq starts at 1 and matches the session version it produced.
type HistoryEntry struct {
	SessionID  string        `json:"session_id"`
	Seq        int           `json:"seq"`
	Action     HistoryAction `json:"action"`
	From       Status        `json:"from,omitempty"`
	To         Status        `json:"to,omitempty"`
	ActorID    string        `json:"actor_id"`
	ActorRole  string        `json:"actor_role"`
	Comment    string        `json:"comment,omitempty"`
	Conversion *Conversion   `json:"conversion,omitempty"`
	At         time.Time     `json:"at"` // UTC
}

// State is the workflow part of a session rebuilt from its history.
type State struct {
	Status     Status
	Feedback   string
	Conversion *Conversion
	UpdatedBy  string
	UpdatedAt  time.Time
	Version    int
}

// StateOf extracts the State of s.
func StateOf(s Session) State {
	return State{
		Status:     s.Status,
		Feedback:   s.Feedback,
		Conversion: s.Conversion.Clone(),
		UpdatedBy:  s.UpdatedBy,
		UpdatedAt:  s.UpdatedAt,
		Version:    s.Version,
	}
}

// Replay folds entries, in Seq order, into the State they lead to.
func Replay(entries []HistoryEntry) State {
	var st State
	for _, e := range entries {
		switch e.Action {
		case HistoryCreated:
			st.Status = e.To
		case HistoryReturned:
			st.Feedback = appendFeedback(st.Feedback, e.Comment)
		case HistoryTransitioned:
			st.Status = e.To
			st.Feedback = appendFeedback(st.Feedback, e.Comment)
			if e.Conversion != nil {
				st.Conversion = e.Conversion.Clone()
			}
		}
		st.UpdatedBy = e.ActorID
		st.UpdatedAt = e.At
		st.Version = e.Seq
	}
	return st
}

func appendFeedback(feedback, comment string) string {
	comment = strings.TrimSpace(comment)
	switch {
	case comment == "":
		return feedback
	case feedback == "":
		return comment
	}
	return feedback + "\n" + comment
}
