package stream

import (
	"time"

	"github.com/DoyleJ11/facecap/internal/store"
)

const DefaultInterval = 250 * time.Millisecond

// State is the frame streamer's part of the session: credit, the
// identifiers stamped on every frame, and whether the video source is up.
type State struct {
	Budget    Budget
	CaptureID int64
	Target    int
	Ready     bool
}

func NewState(credits int) State {
	return State{Budget: NewBudget(credits), Target: store.Unknown}
}

// Gate lists the conditions a tick checks before it may send.
type Gate struct {
	ConnOpen   bool
	Calibrated bool
	VideoReady bool
	HasCredit  bool
}

func (g Gate) Open() bool {
	return g.ConnOpen && g.Calibrated && g.VideoReady && g.HasCredit
}

func (s State) Gate(connOpen, calibrated bool) Gate {
	return Gate{
		ConnOpen:   connOpen,
		Calibrated: calibrated,
		VideoReady: s.Ready,
		HasCredit:  s.Budget.Available(),
	}
}
