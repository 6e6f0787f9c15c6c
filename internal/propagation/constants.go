package propagation

import "math"

// Physical and model constants for the SGP4/SDP4 propagator, reproduced
// bit-for-bit from Spacetrack Report #3 so that outputs match reference
// implementations (spec.md §6).
const (
	xkmper = 6378.135    // Earth equatorial radius, km
	ae     = 1.0         // distance unit: Earth radii
	xj2    = 1.082616e-3 // second zonal harmonic
	xj3    = -2.53881e-6 // third zonal harmonic
	xj4    = -1.65597e-6 // fourth zonal harmonic

	minutesPerDay = 1440.0
	twoPi         = 2 * math.Pi

	// deep-space step-size constants (design note §9): STEP2 is the
	// coefficient of the second-order Euler term, not STEP^2.
	dsStep  = 720.0
	dsStep2 = 259200.0

	// Resonance classification bands (§4.4), n0dp in rad/min.
	synchronousLow  = 0.0034906585
	synchronousHigh = 0.0052359877
	geo12hLow       = 0.00826
	geo12hHigh      = 0.00924
	geo12hMinEcc    = 0.5

	deepSpacePeriodMinutes = 225.0
	simpleModelPerigeeKm   = 220.0
	lowPerigeeKm           = 156.0
	decayPerigeeKm         = 98.0

	keplerMaxIter = 10
	keplerTol     = 1.0e-12
)

var (
	// xke = sqrt(mu/Re^3) * 60, Earth radii^1.5/min (mu = 398600.8 km^3/s^2).
	xke = 60.0 / math.Sqrt(xkmper*xkmper*xkmper/398600.8)

	ck2 = 0.5 * xj2 * ae * ae
	ck4 = -0.375 * xj4 * ae * ae * ae * ae

	// a3ovk2 = -J3/CK2, used by near-space long-period coefficients.
	a3ovk2 = -xj3 / ck2

	// qoms2t is the (q0 - s)^4 term with the default s = 78 km altitude.
	qoms2tDefault = math.Pow((120.0-78.0)/xkmper, 4.0)
	s4Default     = ae * (1.0 + 78.0/xkmper)
)

// thdt is Earth's sidereal rotation rate, radians per minute.
const thdt = 4.37526908801129966e-3

// normalizeAngle reduces an angle to [0, 2*pi).
func normalizeAngle(a float64) float64 {
	a = math.Mod(a, twoPi)
	if a < 0 {
		a += twoPi
	}
	return a
}
