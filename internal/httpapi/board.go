package httpapi

import (
	"sync"
	"time"

	"github.com/DoyleJ11/facecap/internal/engine"
	"github.com/DoyleJ11/facecap/internal/session"
)

// Board keeps what a UI would be showing: the latest notice, the people
// in the last annotated frame, plots, and the submit hint.
type Board struct {
	mu sync.Mutex
	b  board
}

type board struct {
	Status        string    `json:"status"`
	Notice        string    `json:"notice,omitempty"`
	Identities    []string  `json:"identities,omitempty"`
	Annotated     string    `json:"annotated,omitempty"`
	Projection    string    `json:"projection,omitempty"`
	SubmitEnabled bool      `json:"submitEnabled"`
	Deadline      time.Time `json:"deadline"`
	CaptureID     int64     `json:"captureId,omitempty"`
	Complete      bool      `json:"complete"`
	People        int       `json:"people"`
	Images        int       `json:"images"`
}

func NewBoard() *Board {
	return &Board{b: board{Status: string(engine.StatusDisconnected), SubmitEnabled: true}}
}

func (b *Board) Observe(e session.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.b.Status = string(e.View.Status)
	b.b.People = len(e.View.People)
	b.b.Images = len(e.View.Images)

	eff := e.Effect
	switch eff.Type {
	case engine.EffNotice:
		b.b.Notice = eff.Text
	case engine.EffIdentities:
		if len(eff.Labels) == 0 {
			b.b.Identities = []string{eff.Text}
		} else {
			b.b.Identities = eff.Labels
		}
	case engine.EffAnnotated:
		b.b.Annotated = eff.Content
	case engine.EffProjection:
		b.b.Projection = eff.Content
	case engine.EffSubmit:
		b.b.SubmitEnabled = eff.Enabled
	case engine.EffDeadline:
		b.b.Deadline = eff.Deadline
	case engine.EffCaptureStored:
		b.b.CaptureID = eff.ID
		b.b.Complete = false
	case engine.EffCaptureComplete:
		b.b.Complete = true
		b.b.Deadline = time.Time{}
	}
}

func (b *Board) snapshot() board {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.b
	out.Identities = append([]string(nil), b.b.Identities...)
	return out
}
