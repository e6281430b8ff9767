package internal

import (
	"time"

	"github.com/valpere/mythmaker/internal/arbiter"
)

// Trigger is the user input that starts a session.
type Trigger struct {
	Image    []byte
	MIMEType string
	Location string
}

// SessionMemory is the record of one pipeline run. It is built by a single
// run and returned whole; nothing in it survives into the next run.
type SessionMemory struct {
	ID        string    `json:"id"`
	Location  string    `json:"location"`
	StartedAt time.Time `json:"started_at"`

	Visuals   string   `json:"visuals"`
	Lore      string   `json:"lore"`
	Drafts    []string `json:"drafts"`
	FinalMyth string   `json:"final_myth"`

	Evaluations []arbiter.Evaluation `json:"evaluations"`
	StopReason  string               `json:"stop_reason"`
	Duration    time.Duration        `json:"duration"`
}
