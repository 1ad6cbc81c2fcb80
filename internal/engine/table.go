package engine

import (
	"fmt"
	"time"

	"github.com/DoyleJ11/facecap/internal/store"
	"github.com/DoyleJ11/facecap/internal/stream"
	"github.com/DoyleJ11/facecap/internal/types"
	wire "github.com/DoyleJ11/facecap/pkg/types"
)

type handler func(s State, msg types.ServerMessage, at time.Time) ([]Effect, State, error)

// Handlers has one entry per inbound tag the client understands.
var Handlers = map[wire.Tag]handler{
	wire.TagNull:              onEcho,
	wire.TagProcessed:         onProcessed,
	wire.TagWarning:           onWarning,
	wire.TagStoredPage2:       onStored,
	wire.TagEndFaceCollection: onEndCollection,
	wire.TagNewImage:          onNewImage,
	wire.TagIdentities:        onIdentities,
	wire.TagAnnotated:         onAnnotated,
	wire.TagTSNEData:          onProjection,
}

func onEcho(s State, _ types.ServerMessage, at time.Time) ([]Effect, State, error) {
	if s.Status != StatusCalibrating {
		return nil, s, ErrUnexpectedEcho
	}
	newState := s
	more, err := newState.Calib.Echo(at)
	if err != nil {
		return nil, s, err
	}
	if more {
		return []Effect{send(types.Probe{})}, newState, nil
	}

	stats, err := newState.Calib.Stats()
	if err != nil {
		return nil, s, err
	}
	newState.Status = StatusStreaming
	return []Effect{
		{Type: EffRTT, Stats: stats},
		send(types.AllState(s.Gallery.Snapshot())),
		{Type: EffStreamKick},
	}, newState, nil
}

func onProcessed(s State, _ types.ServerMessage, _ time.Time) ([]Effect, State, error) {
	newState := s
	newState.Stream.Budget.Restore()
	return nil, newState, nil
}

// onWarning gives the credit back like PROCESSED does. Every
// WarningThreshold consecutive warnings the user is told once; in the
// registered phase the capture window also grows.
func onWarning(s State, _ types.ServerMessage, _ time.Time) ([]Effect, State, error) {
	newState := s
	newState.Stream.Budget.Restore()
	newState.Warnings++

	var effects []Effect
	if s.SubmitEnabled {
		newState.SubmitEnabled = false
		effects = append(effects, Effect{Type: EffSubmit, Enabled: false})
	}

	if newState.Warnings < s.Rules.WarningThreshold {
		return effects, newState, nil
	}
	newState.Warnings = 0
	effects = append(effects, Effect{Type: EffNotice, Text: UnableToDetect})

	if s.Phase == PhaseRegistered {
		newState.Window += s.Rules.DeadlineExtension
		if !s.Deadline.IsZero() {
			newState.Deadline = s.Deadline.Add(s.Rules.DeadlineExtension)
		}
		effects = append(effects, Effect{Type: EffDeadline, Deadline: newState.Deadline})
	}
	return effects, newState, nil
}

// onStored records the capture id and reopens the budget for one frame at
// a time until the capture window runs out. A collection that ended
// before calibration finished stays terminated.
func onStored(s State, msg types.ServerMessage, at time.Time) ([]Effect, State, error) {
	m := msg.(types.StoredID)
	newState := s
	newState.Stream.CaptureID = int64(m.ID)
	newState.Stream.Budget.Reset(1)
	// only a calibrated connection may go back to streaming
	if s.Status == StatusTerminated && s.Calib.Done() {
		newState.Status = StatusStreaming
	}
	newState.Deadline = at.Add(s.Window)
	return []Effect{
		{Type: EffCaptureStored, ID: int64(m.ID)},
		{Type: EffNotice, Text: fmt.Sprintf("Capture closes in %s", s.Window)},
		{Type: EffDeadline, Deadline: newState.Deadline},
		{Type: EffStreamKick},
	}, newState, nil
}

func onEndCollection(s State, msg types.ServerMessage, _ time.Time) ([]Effect, State, error) {
	m := msg.(types.EndFaceCollection)
	newState := s
	newState.Stream.Budget.End()
	newState.Status = StatusTerminated
	return []Effect{
		send(types.StoppedAck{Name: m.Name, Mail: m.Mail}),
		{Type: EffCollectionEnded},
	}, newState, nil
}

func onNewImage(s State, msg types.ServerMessage, _ time.Time) ([]Effect, State, error) {
	m := msg.(types.NewImage)
	url, err := stream.ThumbDataURL(m.Content)
	if err != nil {
		return nil, s, err
	}
	err = s.Gallery.AddImage(store.Image{
		Hash:           m.Hash,
		Identity:       m.Identity,
		Image:          url,
		Representation: m.Representation,
	})
	if err != nil {
		return nil, s, fmt.Errorf("new image %s: %w", m.Hash, err)
	}
	return []Effect{{Type: EffGallery}}, s, nil
}

func onIdentities(s State, msg types.ServerMessage, _ time.Time) ([]Effect, State, error) {
	m := msg.(types.Identities)
	if len(m.Identities) == 0 {
		return []Effect{{Type: EffIdentities, Text: NobodyDetected}}, s, nil
	}
	labels := make([]string, 0, len(m.Identities))
	for _, idx := range m.Identities {
		labels = append(labels, s.Gallery.Label(idx))
	}
	return []Effect{{Type: EffIdentities, Labels: labels}}, s, nil
}

func onAnnotated(s State, msg types.ServerMessage, _ time.Time) ([]Effect, State, error) {
	return []Effect{{Type: EffAnnotated, Content: msg.(types.Annotated).Content}}, s, nil
}

func onProjection(s State, msg types.ServerMessage, _ time.Time) ([]Effect, State, error) {
	return []Effect{{Type: EffProjection, Content: msg.(types.TSNEData).Content}}, s, nil
}
