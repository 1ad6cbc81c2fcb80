package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DoyleJ11/facecap/internal/calibrate"
	"github.com/DoyleJ11/facecap/internal/config"
	"github.com/DoyleJ11/facecap/internal/engine"
	"github.com/DoyleJ11/facecap/internal/journal"
	"github.com/DoyleJ11/facecap/internal/metrics"
	"github.com/DoyleJ11/facecap/internal/store"
	"github.com/DoyleJ11/facecap/internal/stream"
	"github.com/DoyleJ11/facecap/internal/types"
	"github.com/DoyleJ11/facecap/internal/ws"
)

type Msg interface{ isSessionMsg() }

// Connect opens a connection to Endpoint, replacing the current one.
type Connect struct {
	Endpoint config.Endpoint
}

func (Connect) isSessionMsg() {}

// SelectEndpoint switches to one of the configured endpoints by name.
type SelectEndpoint struct {
	Name  string
	Reply chan error // optional
}

func (SelectEndpoint) isSessionMsg() {}

type Disconnect struct{}

func (Disconnect) isSessionMsg() {}

type FromUser struct {
	Cmd   engine.Command
	Reply chan error // optional
}

func (FromUser) isSessionMsg() {}

// VideoReady hands the session a frame source; a nil Source means the
// camera went away.
type VideoReady struct {
	Source stream.Source
}

func (VideoReady) isSessionMsg() {}

// Tick is one firing of the frame loop.
type Tick struct{}

func (Tick) isSessionMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isSessionMsg() {}

type Shutdown struct{}

func (Shutdown) isSessionMsg() {}

// Messages posted by connection goroutines. gen ties them to the
// connection they came from.
type dialed struct {
	gen  int
	conn ws.Conn
	err  error
}

type received struct {
	gen  int
	data []byte
}

type closed struct {
	gen int
	err error
}

func (dialed) isSessionMsg()   {}
func (received) isSessionMsg() {}
func (closed) isSessionMsg()   {}

type Config struct {
	Rules     engine.Rules
	Endpoints []config.Endpoint
	Dialer    ws.Dialer

	// FrameInterval drives the frame loop. Zero leaves ticking to Tick
	// messages.
	FrameInterval time.Duration
	DialTimeout   time.Duration
	WriteTimeout  time.Duration

	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	Journal   journal.Journal
	Observers []Observer
	Now       func() time.Time
}

type View struct {
	Endpoint      string
	Status        engine.Status
	Phase         engine.Phase
	Credits       int
	Budget        string
	CaptureID     int64
	Target        int
	VideoReady    bool
	Warnings      int
	SubmitEnabled bool
	Training      bool
	People        []string
	Images        []store.Image
	Counts        map[int]int
	RTT           *calibrate.Stats
	Deadline      time.Time
	FramesSent    int
}

// Session is the connection manager. One goroutine owns every piece of
// mutable state; everything else talks to it through the inbox.
type Session struct {
	inbox chan Msg
	cfg   Config
	log   *zap.Logger
	m     *metrics.Metrics

	state    engine.State
	endpoint config.Endpoint
	conn     ws.Conn
	gen      int
	source   stream.Source
	rtt      *calibrate.Stats
	frames   int
	pending  sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func New(parent context.Context, cfg Config) (*Session, error) {
	st, err := engine.NewState(cfg.Rules)
	if err != nil {
		return nil, err
	}
	if cfg.Dialer == nil {
		cfg.Dialer = ws.WebsocketDialer{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New(prometheus.NewRegistry())
	}
	if cfg.Journal == nil {
		cfg.Journal = journal.Nop{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 3 * time.Second
	}

	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		inbox:  make(chan Msg, 64),
		cfg:    cfg,
		log:    cfg.Logger,
		m:      cfg.Metrics,
		state:  st,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.m.SetStatus(string(st.Status))

	go s.loop()
	return s, nil
}

// Inbox accepts messages for the session loop.
func (s *Session) Inbox() chan<- Msg { return s.inbox }

// Done is closed once the loop has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) loop() {
	defer close(s.done)

	var tick <-chan time.Time
	if s.cfg.FrameInterval > 0 {
		t := time.NewTicker(s.cfg.FrameInterval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case <-tick:
			s.tick()

		case m := <-s.inbox:
			switch msg := m.(type) {
			case Connect:
				s.connect(msg.Endpoint)

			case SelectEndpoint:
				ep, err := config.Lookup(s.cfg.Endpoints, msg.Name)
				if err == nil {
					s.connect(ep)
				} else {
					s.log.Warn("endpoint switch rejected", zap.String("name", msg.Name), zap.Error(err))
				}
				reply(msg.Reply, err)

			case Disconnect:
				s.dropConn("disconnect requested")
				s.setState(engine.Disconnected(s.state))

			case FromUser:
				reply(msg.Reply, s.execute(msg.Cmd))

			case VideoReady:
				s.source = msg.Source
				s.state.Stream.Ready = msg.Source != nil
				s.tick()

			case Tick:
				s.tick()

			case GetState:
				msg.Reply <- s.view()

			case dialed:
				s.onDialed(msg)

			case received:
				s.onReceived(msg)

			case closed:
				s.onClosed(msg)

			case Shutdown:
				s.shutdown()
				return
			}
		}
	}
}

// connect always tears the current connection down first, so a switch
// recalibrates from scratch.
func (s *Session) connect(ep config.Endpoint) {
	s.dropConn("switching endpoint")
	s.endpoint = ep
	s.setState(engine.Connecting(s.state))

	gen := s.gen
	s.log.Info("connecting", zap.String("endpoint", ep.Name), zap.String("address", ep.Address))
	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.cfg.DialTimeout)
		defer cancel()
		conn, err := s.cfg.Dialer.Dial(ctx, ep.Address)
		if !s.post(dialed{gen: gen, conn: conn, err: err}) && conn != nil {
			_ = conn.Close("shutting down")
		}
	}()
}

func (s *Session) onDialed(msg dialed) {
	if msg.gen != s.gen {
		if msg.conn != nil {
			_ = msg.conn.Close("superseded")
		}
		return
	}
	if msg.err != nil {
		s.m.DialFailures.Inc()
		s.log.Warn("connection failed", zap.String("endpoint", s.endpoint.Name), zap.Error(msg.err))
		s.setState(engine.Disconnected(s.state))
		return
	}

	s.conn = msg.conn
	go s.readLoop(msg.gen, msg.conn)

	s.log.Info("connected", zap.String("endpoint", s.endpoint.Name))
	s.rtt = nil
	effects, st := engine.Open(s.state, s.cfg.Now())
	s.setState(st)
	s.run(effects)
}

func (s *Session) readLoop(gen int, conn ws.Conn) {
	for {
		data, err := conn.Read(s.ctx)
		if err != nil {
			s.post(closed{gen: gen, err: err})
			return
		}
		if !s.post(received{gen: gen, data: data}) {
			return
		}
	}
}

func (s *Session) onClosed(msg closed) {
	if msg.gen != s.gen || s.conn == nil {
		return
	}
	if ws.IsNormalClose(msg.err) {
		s.log.Info("connection closed", zap.String("endpoint", s.endpoint.Name))
	} else {
		s.log.Warn("connection lost", zap.String("endpoint", s.endpoint.Name), zap.Error(msg.err))
	}
	s.conn = nil
	s.gen++
	s.setState(engine.Disconnected(s.state))
}

func (s *Session) onReceived(msg received) {
	if msg.gen != s.gen {
		return
	}
	in, err := types.Decode(msg.data)
	if err != nil {
		s.m.Dropped.WithLabelValues("malformed").Inc()
		s.log.Warn("malformed message", zap.Error(err))
		return
	}
	s.m.Inbound.WithLabelValues(string(in.Tag())).Inc()

	effects, st, err := engine.Apply(s.state, in, s.cfg.Now())
	if err != nil {
		if errors.Is(err, engine.ErrUnrecognized) {
			s.m.Dropped.WithLabelValues("unrecognized").Inc()
			s.log.Info("unrecognized message type", zap.String("type", string(in.Tag())))
		} else {
			s.m.Dropped.WithLabelValues("rejected").Inc()
			s.log.Warn("message rejected", zap.String("type", string(in.Tag())), zap.Error(err))
		}
		return
	}
	if w, ok := in.(types.Warning); ok {
		s.log.Debug("server warning", zap.String("message", w.Message))
	}
	s.setState(st)
	s.run(effects)
}

func (s *Session) execute(cmd engine.Command) error {
	effects, st, err := engine.Execute(s.state, cmd, s.cfg.Now())
	if err != nil {
		s.log.Info("command rejected", zap.String("cmd", string(cmd.Type)), zap.Error(err))
		return err
	}
	s.setState(st)
	s.run(effects)
	return nil
}

// tick is one pass of the frame loop. It never queues anything: if a gate
// is closed the opportunity is gone.
func (s *Session) tick() {
	effects, st := engine.Expire(s.state, s.cfg.Now())
	s.setState(st)
	s.run(effects)

	gate := s.state.Stream.Gate(s.conn != nil, s.state.Streaming())
	if !gate.Open() {
		s.m.TicksSkipped.WithLabelValues(skipReason(gate)).Inc()
		return
	}

	url, err := stream.Capture(s.source)
	if err != nil {
		s.m.TicksSkipped.WithLabelValues("capture").Inc()
		s.log.Warn("frame capture failed", zap.Error(err))
		return
	}
	frame := types.Frame{
		DataURL:  url,
		Identity: s.state.Stream.Target,
		ID:       s.state.Stream.CaptureID,
	}

	// the credit is spent before the write starts
	if !s.state.Stream.Budget.Take() {
		return
	}
	s.m.Credits.Set(float64(s.state.Stream.Budget.Credits()))
	if s.write(frame) {
		s.frames++
		s.m.FramesSent.Inc()
	}
}

func skipReason(g stream.Gate) string {
	switch {
	case !g.ConnOpen:
		return "disconnected"
	case !g.Calibrated:
		return "not_calibrated"
	case !g.VideoReady:
		return "video"
	default:
		return "no_credit"
	}
}

func (s *Session) run(effects []engine.Effect) {
	for _, eff := range effects {
		switch eff.Type {
		case engine.EffSend:
			s.write(eff.Msg)

		case engine.EffRTT:
			stats := eff.Stats
			s.rtt = &stats
			s.m.RTTMean.Set(stats.MeanMs)
			s.m.RTTStdDev.Set(stats.StdDevMs)
			s.log.Info("calibrated",
				zap.String("endpoint", s.endpoint.Name),
				zap.Float64("rtt_mean_ms", stats.MeanMs),
				zap.Float64("rtt_stddev_ms", stats.StdDevMs))

		case engine.EffNotice:
			s.m.Notices.Inc()
			s.log.Info("notice", zap.String("text", eff.Text))

		case engine.EffCaptureStored:
			s.record(eff.ID)

		case engine.EffCollectionEnded:
			s.log.Info("face collection ended", zap.String("endpoint", s.endpoint.Name))

		case engine.EffCaptureComplete:
			s.log.Info("capture complete", zap.Int64("capture_id", eff.ID))
			s.dropConn("capture complete")
			s.setState(engine.Disconnected(s.state))
		}

		s.observe(eff)

		if eff.Type == engine.EffStreamKick {
			s.tick()
		}
	}
	s.m.Credits.Set(float64(s.state.Stream.Budget.Credits()))
}

// write sends m on the current connection. A failed write drops the
// connection.
func (s *Session) write(m types.ClientMessage) bool {
	if s.conn == nil {
		s.log.Debug("not connected, message dropped", zap.String("type", string(m.Tag())))
		return false
	}
	data, err := types.Encode(m)
	if err != nil {
		s.log.Error("encode failed", zap.Error(err))
		return false
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.WriteTimeout)
	err = s.conn.Write(ctx, data)
	cancel()
	if err != nil {
		s.log.Warn("write failed", zap.String("type", string(m.Tag())), zap.Error(err))
		s.dropConn("write failed")
		s.setState(engine.Disconnected(s.state))
		return false
	}
	return true
}

func (s *Session) record(captureID int64) {
	e := journal.Enrollment{
		CaptureID: captureID,
		Name:      s.state.Registrant.Name,
		Mail:      s.state.Registrant.Mail,
		Endpoint:  s.endpoint.Name,
		CreatedAt: s.cfg.Now(),
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), 5*time.Second)
		defer cancel()
		if err := s.cfg.Journal.Record(ctx, e); err != nil {
			s.log.Warn("journal write failed", zap.Int64("capture_id", captureID), zap.Error(err))
		}
	}()
}

// dropConn closes the current connection, if any, and invalidates every
// message still in flight from it.
func (s *Session) dropConn(reason string) error {
	s.gen++
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close(reason)
	s.conn = nil
	return err
}

func (s *Session) setState(st engine.State) {
	prev := s.state.Status
	s.state = st
	if st.Status == prev {
		return
	}
	s.m.SetStatus(string(st.Status))
	s.log.Debug("status", zap.String("from", string(prev)), zap.String("to", string(st.Status)))
	s.observe(engine.Effect{Type: EffStatus, Text: string(st.Status)})
}

func (s *Session) post(m Msg) bool {
	select {
	case s.inbox <- m:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *Session) shutdown() {
	s.pending.Wait()
	err := multierr.Append(
		s.dropConn("bye"),
		s.cfg.Journal.Close(),
	)
	if err != nil {
		s.log.Warn("shutdown", zap.Error(err))
	}
	s.state = engine.Disconnected(s.state)
	s.cancel()
}

func (s *Session) view() View {
	g := s.state.Gallery
	return View{
		Endpoint:      s.endpoint.Name,
		Status:        s.state.Status,
		Phase:         s.state.Phase,
		Credits:       s.state.Stream.Budget.Credits(),
		Budget:        s.state.Stream.Budget.State().String(),
		CaptureID:     s.state.Stream.CaptureID,
		Target:        s.state.Stream.Target,
		VideoReady:    s.state.Stream.Ready,
		Warnings:      s.state.Warnings,
		SubmitEnabled: s.state.SubmitEnabled,
		Training:      g.Training(),
		People:        g.People(),
		Images:        g.Images(),
		Counts:        g.Counts(),
		RTT:           s.rtt,
		Deadline:      s.state.Deadline,
		FramesSent:    s.frames,
	}
}

func reply(ch chan error, err error) {
	if ch != nil {
		ch <- err
	}
}
