package engine

import (
	"time"

	"github.com/DoyleJ11/facecap/internal/calibrate"
	"github.com/DoyleJ11/facecap/internal/store"
	"github.com/DoyleJ11/facecap/internal/stream"
)

func DefaultRules() Rules {
	return Rules{
		DefaultTokens:     1,
		Probes:            calibrate.DefaultProbes,
		WarningThreshold:  10,
		CaptureWindow:     30 * time.Second,
		DeadlineExtension: 5 * time.Second,
	}
}

func NewState(rules Rules) (State, error) {
	calib, err := calibrate.New(rules.Probes)
	if err != nil {
		return State{}, err
	}
	return State{
		Status:        StatusDisconnected,
		Phase:         PhaseCollect,
		Stream:        stream.NewState(rules.DefaultTokens),
		Calib:         calib,
		Gallery:       store.New(),
		SubmitEnabled: true,
		Window:        rules.CaptureWindow,
		Rules:         rules,
	}, nil
}

func ContainsEffect(effects []Effect, effectType EffectType) bool {
	for _, effect := range effects {
		if effect.Type == effectType {
			return true
		}
	}
	return false
}

// Sent returns the outbound messages among effects, in order.
func Sent(effects []Effect) []string {
	var tags []string
	for _, effect := range effects {
		if effect.Type == EffSend {
			tags = append(tags, string(effect.Msg.Tag()))
		}
	}
	return tags
}
