package propagation

import (
	"fmt"
	"sync"
	"time"

	"github.com/star/stargo/internal/julian"
	"github.com/star/stargo/internal/tle"
	"github.com/star/stargo/internal/transform"
	"github.com/star/stargo/internal/vector"
)

// SGP4Propagator is a prepared handle for a single satellite: everything a
// TLE determines once (the mean elements, the near-space and, when needed,
// deep-space coefficient sets) is computed by SetElements and reused by
// every subsequent Propagate/PropagateAt call. Only the deep-space
// resonance integrator mutates after that (spec.md §5, design note §9).
type SGP4Propagator struct {
	mu sync.Mutex

	noradID int
	epoch   julian.Date

	el   *elements
	m    mode
	c    coefficients
	ds   deepSpace
	intg integratorState
}

// NewSGP4Propagator builds and initializes a propagator directly from a
// pair of TLE lines. This is the entry point orchestration code (worker
// pools, pass prediction) uses when it already has raw TLE text in hand.
func NewSGP4Propagator(line1, line2 string, noradID int) (*SGP4Propagator, error) {
	entry, err := tle.ParseEntry(line1, line2, noradID)
	if err != nil {
		return nil, fmt.Errorf("parsing TLE for NORAD %d: %w", noradID, err)
	}
	p := &SGP4Propagator{}
	if err := p.SetElements(entry); err != nil {
		return nil, fmt.Errorf("initializing propagator for NORAD %d: %w", noradID, err)
	}
	return p, nil
}

// SetElements (re)initializes the propagator from a TLE record: recovers
// the Brouwer mean elements, derives the near-space coefficient set, and,
// for orbits with a period of 225 minutes or more, the deep-space
// lunar/solar and resonance coefficient set (spec.md §4.1, §4.2). It is
// idempotent: calling it again with the same TLE reproduces the same
// state, including a fresh resonance integrator seed.
func (p *SGP4Propagator) SetElements(entry tle.TLEEntry) error {
	epoch := julian.FromTime(entry.Epoch)
	el, err := newElements(entry, epoch)
	if err != nil {
		return err
	}
	m := classifyMode(el)
	c := initCoefficients(el, m)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.noradID = entry.NORADID
	p.epoch = epoch
	p.el = el
	p.m = m
	p.c = c
	if m.useDeepSpace {
		p.ds = initDeepSpace(el, m, c, epoch)
		p.intg.reset(p.ds, el.recoveredMeanMotion)
	} else {
		p.ds = deepSpace{}
		p.intg = integratorState{}
	}
	return nil
}

// PropagateMinutes returns the ECI state tsince minutes after the TLE
// epoch (spec.md §4.3, §6).
func (p *SGP4Propagator) PropagateMinutes(tsince float64) (vector.Eci, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.el == nil {
		return vector.Eci{}, newError(InternalError, "propagator has no elements set")
	}

	pos, vel, err := propagateState(p.el, p.c, p.m, p.ds, &p.intg, tsince)
	if err != nil {
		return vector.Eci{}, err
	}
	return vector.Eci{
		Date:     p.epoch.AddMinutes(tsince).Time(),
		Position: pos,
		Velocity: vel,
	}, nil
}

// PropagateAt returns the ECI state at an absolute Julian date (spec.md
// §6). It is equivalent to PropagateMinutes at the elapsed minutes between
// the TLE epoch and date.
func (p *SGP4Propagator) PropagateAt(date julian.Date) (vector.Eci, error) {
	p.mu.Lock()
	epoch := p.epoch
	p.mu.Unlock()
	return p.PropagateMinutes(julian.SpanMinutes(epoch, date))
}

// Propagate is the ambient adapter used by the batch worker pool and pass
// predictor: it converts a calendar timestamp to minutes since epoch and
// returns the state in the transform package's TEME datatype instead of
// vector.Eci, since those callers feed the result straight into
// transform.TEMEToECEF.
func (p *SGP4Propagator) Propagate(year, month, day, hour, min, sec int) (transform.PositionTEME, error) {
	target := julian.FromTime(time.Date(year, time.Month(month), day, hour, min, sec, 0, time.UTC))
	p.mu.Lock()
	epoch := p.epoch
	p.mu.Unlock()

	state, err := p.PropagateMinutes(julian.SpanMinutes(epoch, target))
	if err != nil {
		return transform.PositionTEME{}, fmt.Errorf("sgp4 propagation failed for NORAD %d: %w", p.noradID, err)
	}
	return transform.PositionTEME{
		X:  state.Position.X,
		Y:  state.Position.Y,
		Z:  state.Position.Z,
		VX: state.Velocity.X,
		VY: state.Velocity.Y,
		VZ: state.Velocity.Z,
	}, nil
}
