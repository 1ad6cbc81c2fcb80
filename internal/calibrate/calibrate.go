package calibrate

import (
	"errors"
	"math"
	"time"
)

const (
	DefaultProbes = 10
	// WarmUp is the number of leading samples left out of the statistics.
	WarmUp = 5
)

var ErrNotStarted = errors.New("calibration not started")
var ErrIncomplete = errors.New("calibration incomplete")
var ErrTooFewProbes = errors.New("probe count must exceed warm-up")

type Sample struct {
	Sent     time.Time
	Received time.Time
}

func (s Sample) RTT() time.Duration { return s.Received.Sub(s.Sent) }

// Stats summarises the round trips after warm-up, in milliseconds.
type Stats struct {
	MeanMs   float64
	StdDevMs float64
	Samples  int
}

// Calibrator runs the NULL probe handshake. Probes go out strictly one at
// a time: the next one is only sent once the previous echo arrived.
type Calibrator struct {
	probes  int
	samples []Sample
	stats   Stats
	done    bool
}

func New(probes int) (Calibrator, error) {
	if probes <= WarmUp {
		return Calibrator{}, ErrTooFewProbes
	}
	return Calibrator{probes: probes}, nil
}

func (c Calibrator) Probes() int { return c.probes }

// Reset drops all samples so a new handshake can start.
func (c *Calibrator) Reset() {
	c.samples = c.samples[:0]
	c.stats = Stats{}
	c.done = false
}

// Start records the send time of the first probe.
func (c *Calibrator) Start(at time.Time) {
	c.Reset()
	c.samples = append(c.samples, Sample{Sent: at})
}

// Echo records the arrival of an echoed probe at time at. It returns
// true when another probe must be sent, in which case its send time is
// recorded as at as well. Once the last echo arrives the statistics are
// computed and Done reports true.
func (c *Calibrator) Echo(at time.Time) (more bool, err error) {
	if c.done {
		return false, nil
	}
	n := len(c.samples)
	if n == 0 {
		return false, ErrNotStarted
	}
	c.samples[n-1].Received = at

	if n < c.probes {
		c.samples = append(c.samples, Sample{Sent: at})
		return true, nil
	}

	c.stats = summarize(c.samples[WarmUp:])
	c.done = true
	return false, nil
}

func (c Calibrator) Done() bool { return c.done }

// Acked is the number of echoed probes so far.
func (c Calibrator) Acked() int {
	n := len(c.samples)
	if n > 0 && c.samples[n-1].Received.IsZero() {
		n--
	}
	return n
}

func (c Calibrator) Stats() (Stats, error) {
	if !c.done {
		return Stats{}, ErrIncomplete
	}
	return c.stats, nil
}

// summarize returns the mean and population standard deviation.
func summarize(samples []Sample) Stats {
	if len(samples) == 0 {
		return Stats{}
	}
	var sum float64
	for _, s := range samples {
		sum += ms(s.RTT())
	}
	mean := sum / float64(len(samples))

	var sq float64
	for _, s := range samples {
		d := ms(s.RTT()) - mean
		sq += d * d
	}
	return Stats{
		MeanMs:   mean,
		StdDevMs: math.Sqrt(sq / float64(len(samples))),
		Samples:  len(samples),
	}
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
