package propagation

import "math"

// integratorState is the deep-space resonance integrator's cache: the
// running longitude (xli), mean motion (xni), and the time (atime) they
// were last evaluated at. It is the only part of a deep-space propagator
// that mutates across calls (design note §9); everything in deepSpace and
// coefficients is a pure function of the element set and never changes.
type integratorState struct {
	atime float64
	xli   float64
	xni   float64
}

// reset seeds the integrator at epoch (spec.md §4.2: atime=0, xli=xlamo,
// xni=n").
func (s *integratorState) reset(ds deepSpace, n0dp float64) {
	s.atime = 0
	s.xli = ds.xlamo
	s.xni = n0dp
}

// secularUpdate adds the deep-space lunar/solar secular rates on top of the
// near-space drag-secular argument of perigee, node, and mean anomaly
// (argpm, nodem, mm, already advanced by the caller) and, for resonant
// orbits, steps the fixed-step resonance integrator to override mm and nm
// (spec.md §4.4). It mutates intg in place; callers must serialize access
// per satellite.
func secularUpdate(el *elements, c coefficients, m mode, ds deepSpace, t float64, argpm, nodem, mm *float64, intg *integratorState) (em, inclm, nm float64) {
	em = el.ecc0 + ds.sse*t
	inclm = el.incl0 + ds.ssi*t
	*argpm += ds.ssg * t
	*nodem += ds.ssh * t
	*mm += ds.ssl * t
	nm = el.recoveredMeanMotion

	if m.res == resonanceNone {
		return
	}

	theta := normalizeAngle(ds.gsto + t*thdt)

	// Epoch restart: integrator hasn't run, or t crossed the origin, or t
	// moved closer to the origin than the last cached point (spec.md §4.4).
	if intg.atime == 0 || t*intg.atime <= 0 || math.Abs(t) < math.Abs(intg.atime) {
		intg.atime = 0
		intg.xni = el.recoveredMeanMotion
		intg.xli = ds.xlamo
	}

	delt := dsStep
	if t < 0 {
		delt = -dsStep
	}

	var xndt, xnddt, xldot, ft float64
	for {
		if m.res == resonanceGeopotential12h {
			xomi := el.argp0 + c.omgdot*intg.atime
			x2omi := xomi + xomi
			x2li := intg.xli + intg.xli
			xndt = ds.d2201*math.Sin(x2omi+intg.xli-g22) + ds.d2211*math.Sin(intg.xli-g22) +
				ds.d3210*math.Sin(xomi+intg.xli-g32) + ds.d3222*math.Sin(-xomi+intg.xli-g32) +
				ds.d4410*math.Sin(x2omi+x2li-g44) + ds.d4422*math.Sin(x2li-g44) +
				ds.d5220*math.Sin(xomi+intg.xli-g52) + ds.d5232*math.Sin(-xomi+intg.xli-g52) +
				ds.d5421*math.Sin(xomi+x2li-g54) + ds.d5433*math.Sin(-xomi+x2li-g54)
			xldot = intg.xni + ds.xfact
			xnddt = ds.d2201*math.Cos(x2omi+intg.xli-g22) + ds.d2211*math.Cos(intg.xli-g22) +
				ds.d3210*math.Cos(xomi+intg.xli-g32) + ds.d3222*math.Cos(-xomi+intg.xli-g32) +
				ds.d5220*math.Cos(xomi+intg.xli-g52) + ds.d5232*math.Cos(-xomi+intg.xli-g52) +
				2.0*(ds.d4410*math.Cos(x2omi+x2li-g44)+ds.d4422*math.Cos(x2li-g44)+
					ds.d5421*math.Cos(xomi+x2li-g54)+ds.d5433*math.Cos(-xomi+x2li-g54))
			xnddt *= xldot
		} else {
			xndt = ds.del1*math.Sin(intg.xli-fasx2) +
				ds.del2*math.Sin(2.0*(intg.xli-fasx4)) +
				ds.del3*math.Sin(3.0*(intg.xli-fasx6))
			xldot = intg.xni + ds.xfact
			xnddt = ds.del1*math.Cos(intg.xli-fasx2) +
				2.0*ds.del2*math.Cos(2.0*(intg.xli-fasx4)) +
				3.0*ds.del3*math.Cos(3.0*(intg.xli-fasx6))
			xnddt *= xldot
		}

		if math.Abs(t-intg.atime) < dsStep {
			ft = t - intg.atime
			break
		}
		intg.xli += xldot*delt + xndt*dsStep2
		intg.xni += xndt*delt + xnddt*dsStep2
		intg.atime += delt
	}

	nm = intg.xni + xndt*ft + xnddt*ft*ft*0.5
	xl := intg.xli + xldot*ft + xndt*ft*ft*0.5

	if m.res == resonanceSynchronous {
		*mm = xl - *nodem - *argpm + theta
	} else {
		*mm = xl - 2.0**nodem + 2.0*theta
	}

	return
}
