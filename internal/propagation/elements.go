package propagation

import (
	"math"

	"github.com/star/stargo/internal/julian"
	"github.com/star/stargo/internal/tle"
)

// elements is the immutable mean-element snapshot built from a TLE plus
// its recovered Keplerian quantities (spec.md §3, §4.1).
type elements struct {
	epoch julian.Date

	m0     float64 // mean anomaly, rad
	raan0  float64 // right ascension of ascending node, rad
	argp0  float64 // argument of perigee, rad
	ecc0   float64 // eccentricity
	incl0  float64 // inclination, rad
	n0     float64 // mean motion at epoch, rad/min
	bstar  float64

	cosio, sinio float64

	// Recovered on set.
	recoveredMeanMotion float64 // n" (double-prime), rad/min
	recoveredSemiMajor  float64 // a" (double-prime), Earth radii
	perigeeKm           float64
	periodMinutes       float64
}

// newElements validates a TLE's numeric fields and recovers the
// unperturbed Keplerian mean motion and semi-major axis via the Brouwer
// correction (spec.md §4.1). Fails with OutOfRange if eccentricity or
// inclination are outside their physical bounds.
func newElements(entry tle.TLEEntry, epoch julian.Date) (*elements, error) {
	e0 := entry.Eccentricity
	i0 := entry.InclinationRad

	if e0 < 0 || e0 > 1-1e-3 {
		return nil, newError(OutOfRange, "eccentricity %g out of [0, 1-1e-3)", e0)
	}
	// Design note §9: the source's inclination check reads as a typo for
	// `inclination_ > PI`; bounds are treated as [0, pi].
	if i0 < 0 || i0 > math.Pi {
		return nil, newError(OutOfRange, "inclination %g out of [0, pi]", i0)
	}

	el := &elements{
		epoch: epoch,
		m0:    entry.MeanAnomalyRad,
		raan0: entry.RAANRad,
		argp0: entry.ArgPerigeeRad,
		ecc0:  e0,
		incl0: i0,
		n0:    entry.MeanMotionRadMin,
		bstar: entry.BStar,
	}
	el.cosio = math.Cos(i0)
	el.sinio = math.Sin(i0)

	a1 := math.Pow(xke/el.n0, 2.0/3.0)
	theta2 := el.cosio * el.cosio
	beta0sq := 1 - e0*e0
	beta0 := math.Sqrt(beta0sq)

	temp := 1.5 * ck2 * (3*theta2 - 1) / (beta0 * beta0sq)
	del1 := temp / (a1 * a1)
	a0 := a1 * (1 - del1*(1.0/3.0+del1*(1+134.0*del1/81.0)))
	del0 := temp / (a0 * a0)

	el.recoveredMeanMotion = el.n0 / (1 + del0)
	el.recoveredSemiMajor = a0 / (1 - del0)
	el.perigeeKm = (el.recoveredSemiMajor*(1-e0) - 1) * xkmper
	el.periodMinutes = twoPi / el.recoveredMeanMotion

	return el, nil
}
