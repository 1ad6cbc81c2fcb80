package session

import "github.com/DoyleJ11/facecap/internal/engine"

// EffStatus is reported to observers whenever the connection status
// changes. Text carries the new status.
const EffStatus engine.EffectType = "Status"

type Event struct {
	Effect engine.Effect
	View   View
}

// Observer is called on the session goroutine and must not block.
type Observer interface {
	Observe(Event)
}

type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

func (s *Session) observe(eff engine.Effect) {
	if len(s.cfg.Observers) == 0 {
		return
	}
	ev := Event{Effect: eff, View: s.view()}
	for _, o := range s.cfg.Observers {
		o.Observe(ev)
	}
}
