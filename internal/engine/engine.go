package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/facecap/internal/calibrate"
	"github.com/DoyleJ11/facecap/internal/store"
	"github.com/DoyleJ11/facecap/internal/stream"
	"github.com/DoyleJ11/facecap/internal/types"
)

var ErrUnrecognized = errors.New("unrecognized message type")
var ErrUnexpectedEcho = errors.New("probe echo outside calibration")
var ErrUnsupportedCommand = errors.New("unsupported command")
var ErrEmptyName = errors.New("empty person name")
var ErrSubmitDisabled = errors.New("submit disabled while warnings are frequent")
var ErrNotStreaming = errors.New("not streaming to a calibrated server")

// Status is the connection lifecycle as the protocol sees it.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusCalibrating  Status = "calibrating"
	StatusStreaming    Status = "synced_streaming"
	StatusTerminated   Status = "terminated"
)

// Phase tracks where the capture flow is, independent of the socket.
type Phase string

const (
	PhaseCollect    Phase = "collect"
	PhaseRegistered Phase = "registered" // registration details submitted
	PhaseDone       Phase = "done"
)

const (
	NobodyDetected   = "Nobody detected."
	UnableToDetect   = "Unable to detect face"
	CaptureCompleted = "Face capture complete"
	RegisterClickVal = "clicked on register"
)

type State struct {
	Status  Status
	Phase   Phase
	Stream  stream.State
	Calib   calibrate.Calibrator
	Gallery *store.Store

	Warnings      int
	SubmitEnabled bool
	Registrant    types.Info

	// Window is how long the single-shot phase runs once the server has
	// stored the capture. Deadline is zero until that phase starts.
	Window   time.Duration
	Deadline time.Time

	Rules Rules
}

type Rules struct {
	DefaultTokens     int
	Probes            int
	WarningThreshold  int
	CaptureWindow     time.Duration
	DeadlineExtension time.Duration
}

type CommandType string

const (
	CmdAddPerson      CommandType = "AddPerson"
	CmdSetTraining    CommandType = "SetTraining"
	CmdRequestTSNE    CommandType = "RequestTSNE"
	CmdUpdateIdentity CommandType = "UpdateIdentity"
	CmdRemoveImage    CommandType = "RemoveImage"
	CmdSubmitInfo     CommandType = "SubmitInfo"
	CmdRegister       CommandType = "Register"
	CmdSetTarget      CommandType = "SetTarget"
)

/*
	CmdAddPerson      -> Send ADD_PERSON -> EffGallery (new person becomes the frame target)
	CmdSetTraining    -> Send TRAINING
	CmdRequestTSNE    -> Send REQ_TSNE
	CmdUpdateIdentity -> Send UPDATE_IDENTITY -> EffGallery, only when the hash is known
	CmdRemoveImage    -> Send REMOVE_IMAGE -> EffGallery, only when the hash is known
	CmdSubmitInfo     -> Send INFO, phase becomes registered; only while streaming
	CmdRegister       -> Send register_click
	CmdSetTarget      -> no message, changes the identity stamped on frames
*/

type Command struct {
	Type     CommandType
	Name     string
	Enabled  bool
	Hash     string
	Identity int
	Info     types.Info
}

type EffectType string

const (
	EffSend            EffectType = "Send"
	EffNotice          EffectType = "Notice"
	EffRTT             EffectType = "RTT"
	EffIdentities      EffectType = "Identities"
	EffGallery         EffectType = "Gallery"
	EffAnnotated       EffectType = "Annotated"
	EffProjection      EffectType = "Projection"
	EffCaptureStored   EffectType = "CaptureStored"
	EffStreamKick      EffectType = "StreamKick"
	EffDeadline        EffectType = "Deadline"
	EffSubmit          EffectType = "Submit"
	EffCollectionEnded EffectType = "CollectionEnded"
	EffCaptureComplete EffectType = "CaptureComplete"
)

// Effect is something the session must do after a transition: write a
// message, or tell an observer.
type Effect struct {
	Type     EffectType
	Msg      types.ClientMessage
	Text     string
	Labels   []string
	Content  string
	ID       int64
	Stats    calibrate.Stats
	Enabled  bool
	Deadline time.Time
}

func send(m types.ClientMessage) Effect { return Effect{Type: EffSend, Msg: m} }

// Open resets per-connection state and sends the first probe.
func Open(s State, at time.Time) ([]Effect, State) {
	newState := s
	newState.Status = StatusCalibrating
	newState.Stream.Budget.Reset(s.Rules.DefaultTokens)
	newState.Warnings = 0
	newState.SubmitEnabled = true
	newState.Calib.Start(at)
	return []Effect{send(types.Probe{})}, newState
}

func Connecting(s State) State {
	s.Status = StatusConnecting
	s.Calib.Reset()
	return s
}

// Disconnected drops back to the idle status. An unfinished calibration is
// discarded, so nothing downstream of it starts.
func Disconnected(s State) State {
	s.Status = StatusDisconnected
	s.Calib.Reset()
	return s
}

// Streaming reports whether the calibration gate of the frame loop is open.
func (s State) Streaming() bool { return s.Status == StatusStreaming }

// Apply routes one inbound message through the dispatch table.
func Apply(s State, msg types.ServerMessage, at time.Time) ([]Effect, State, error) {
	h, ok := Handlers[msg.Tag()]
	if !ok {
		return nil, s, fmt.Errorf("%w: %s", ErrUnrecognized, msg.Tag())
	}

	var pre []Effect
	newState := s
	if _, warn := msg.(types.Warning); !warn && !s.SubmitEnabled {
		newState.SubmitEnabled = true
		pre = append(pre, Effect{Type: EffSubmit, Enabled: true})
	}

	effects, newState, err := h(newState, msg, at)
	if err != nil {
		return nil, s, err
	}
	return append(pre, effects...), newState, nil
}

// Execute applies a local user action.
func Execute(s State, cmd Command, at time.Time) ([]Effect, State, error) {
	newState := s
	g := s.Gallery

	switch cmd.Type {
	case CmdAddPerson:
		if cmd.Name == "" {
			return nil, s, ErrEmptyName
		}
		idx := g.AddPerson(cmd.Name)
		newState.Stream.Target = idx
		return []Effect{
			send(types.AddPerson{Val: cmd.Name}),
			{Type: EffGallery},
		}, newState, nil

	case CmdSetTraining:
		g.SetTraining(cmd.Enabled)
		return []Effect{send(types.Training{Val: cmd.Enabled})}, newState, nil

	case CmdRequestTSNE:
		return []Effect{send(types.ReqTSNE{People: g.People()})}, newState, nil

	case CmdUpdateIdentity:
		ok, err := g.UpdateIdentity(cmd.Hash, cmd.Identity)
		if err != nil {
			return nil, s, err
		}
		if !ok {
			return nil, newState, nil
		}
		return []Effect{
			send(types.UpdateIdentity{Hash: cmd.Hash, Idx: cmd.Identity}),
			{Type: EffGallery},
		}, newState, nil

	case CmdRemoveImage:
		if !g.RemoveImage(cmd.Hash) {
			return nil, newState, nil
		}
		return []Effect{
			{Type: EffGallery},
			send(types.RemoveImage{Hash: cmd.Hash}),
		}, newState, nil

	case CmdSubmitInfo:
		if !s.Streaming() {
			return nil, s, ErrNotStreaming
		}
		if !s.SubmitEnabled {
			return nil, s, ErrSubmitDisabled
		}
		newState.Phase = PhaseRegistered
		newState.Registrant = cmd.Info
		return []Effect{send(cmd.Info)}, newState, nil

	case CmdRegister:
		return []Effect{send(types.RegisterClick{Val: RegisterClickVal})}, newState, nil

	case CmdSetTarget:
		if !g.ValidIdentity(cmd.Identity) {
			return nil, s, store.ErrIdentityOutOfRange
		}
		newState.Stream.Target = cmd.Identity
		return nil, newState, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

// Expire ends the single-shot phase once its deadline has passed.
func Expire(s State, at time.Time) ([]Effect, State) {
	if s.Deadline.IsZero() || at.Before(s.Deadline) {
		return nil, s
	}
	newState := s
	newState.Deadline = time.Time{}
	newState.Stream.Budget.End()
	newState.Status = StatusTerminated
	newState.Phase = PhaseDone
	return []Effect{
		{Type: EffNotice, Text: CaptureCompleted},
		{Type: EffCaptureComplete, ID: s.Stream.CaptureID},
	}, newState
}
