package propagation

import "math"

// resonance classifies the deep-space geopotential resonance an orbit is
// subject to (spec.md §3, §4.4).
type resonance int

const (
	resonanceNone resonance = iota
	resonanceSynchronous
	resonanceGeopotential12h
)

// mode captures the branch-selection flags assigned once at init and read
// only thereafter (spec.md §3).
type mode struct {
	useDeepSpace   bool
	useSimpleModel bool
	res            resonance
}

func classifyMode(el *elements) mode {
	m := mode{
		useDeepSpace: el.periodMinutes >= deepSpacePeriodMinutes,
	}
	// Deep-space objects always use the simple drag model: the higher-order
	// d2-d4/t3-5cof secular terms are replaced by the lunar/solar
	// perturbations instead (spec.md §4.2).
	m.useSimpleModel = m.useDeepSpace || el.perigeeKm < simpleModelPerigeeKm

	n := el.recoveredMeanMotion
	switch {
	case n > synchronousLow && n < synchronousHigh:
		m.res = resonanceSynchronous
	case n >= geo12hLow && n <= geo12hHigh && el.ecc0 >= geo12hMinEcc:
		m.res = resonanceGeopotential12h
	default:
		m.res = resonanceNone
	}
	return m
}

// coefficients holds the 19 near-space scalars used only by the SGP4
// branch, plus the secular rates and short-period constants shared by both
// branches (spec.md §3, §4.2). Every field is a pure function of the
// element record and the init constants.
type coefficients struct {
	// Shared by both branches.
	c1, c4     float64
	xmdot      float64
	omgdot     float64
	xnodot     float64
	xnodcf     float64
	t2cof      float64
	x3thm1     float64
	x1mth2     float64
	x7thm1     float64
	aycof      float64
	xlcof      float64
	eta        float64

	// Near-space only (zero/unused when useDeepSpace is true).
	c3, c5           float64
	omgcof           float64
	xmcof            float64
	delmo            float64
	sinmo            float64
	d2, d3, d4       float64
	t3cof            float64
	t4cof            float64
	t5cof            float64
}

// initCoefficients computes the near-space coefficient set (spec.md §4.2).
func initCoefficients(el *elements, m mode) coefficients {
	var c coefficients

	perigeeKm := el.perigeeKm
	var s4, qoms24 float64
	if perigeeKm < lowPerigeeKm {
		s4v := perigeeKm - 78.0
		if perigeeKm < decayPerigeeKm {
			s4v = 20.0
		}
		qoms24 = math.Pow((120.0-s4v)/xkmper, 4.0)
		s4 = s4v/xkmper + 1.0
	} else {
		s4 = s4Default
		qoms24 = qoms2tDefault
	}

	aE := el.recoveredSemiMajor
	e0 := el.ecc0
	theta2 := el.cosio * el.cosio
	beta0sq := 1 - e0*e0
	beta0 := math.Sqrt(beta0sq)

	tsi := 1.0 / (aE - s4)
	eta := aE * e0 * tsi
	c.eta = eta
	etasq := eta * eta
	eeta := e0 * eta
	psisq := math.Abs(1 - etasq)
	coef := qoms24 * math.Pow(tsi, 4.0)
	coef1 := coef / math.Pow(psisq, 3.5)

	c2 := coef1 * el.recoveredMeanMotion * (aE*(1+1.5*etasq+eeta*(4+etasq)) +
		0.75*ck2*tsi/psisq*(3*theta2-1)*(8+3*etasq*(8+etasq)))
	c.c1 = el.bstar * c2

	c.c4 = 2 * el.recoveredMeanMotion * coef1 * aE * beta0sq *
		(eta*(2+0.5*etasq) + e0*(0.5+2*etasq) -
			2*ck2*tsi/(aE*psisq)*
				(-3*(3*theta2-1)*(1-2*eeta+etasq*(1.5-0.5*eeta))+
					0.75*(1-theta2)*(2*etasq-eeta*(1+etasq))*math.Cos(2*el.argp0)))

	c.x3thm1 = 3*theta2 - 1
	c.x1mth2 = 1 - theta2
	c.x7thm1 = 7*theta2 - 1

	theta4 := theta2 * theta2
	pinvsq := 1.0 / (aE * aE * beta0sq * beta0sq)
	temp1 := 3 * ck2 * pinvsq * el.recoveredMeanMotion
	temp2 := temp1 * ck2 * pinvsq
	temp3 := 1.25 * ck4 * pinvsq * pinvsq * el.recoveredMeanMotion

	c.xmdot = el.recoveredMeanMotion + 0.5*temp1*beta0*c.x3thm1 +
		0.0625*temp2*beta0*(13-78*theta2+137*theta4)

	x1m5th := 1 - 5*theta2
	c.omgdot = -0.5*temp1*x1m5th +
		0.0625*temp2*(7-114*theta2+395*theta4) +
		temp3*(3-36*theta2+49*theta4)

	xhdot1 := -temp1 * el.cosio
	c.xnodot = xhdot1 + (0.5*temp2*(4-19*theta2)+2*temp3*(3-7*theta2))*el.cosio

	c.xnodcf = 3.5 * beta0sq * xhdot1 * c.c1
	c.t2cof = 1.5 * c.c1

	denom := el.cosio + 1.0
	if math.Abs(denom) <= 1.5e-12 {
		denom = 1.5e-12
	}
	c.xlcof = 0.125 * a3ovk2 * el.sinio * (3 + 5*el.cosio) / denom
	c.aycof = 0.25 * a3ovk2 * el.sinio

	// c3/c5/omgcof/xmcof/delmo/sinmo feed the drag secular model used by
	// both branches; only the higher-order d2-d4/t*cof terms are reserved
	// for near-space objects with a normal (non-simple) perigee.
	var c3 float64
	if e0 > 1e-4 {
		c3 = coef * tsi * a3ovk2 * el.recoveredMeanMotion * el.sinio / e0
	}
	c.c3 = c3
	c.c5 = 2 * coef1 * aE * beta0sq * (1 + 2.75*(etasq+eeta) + eeta*etasq)
	c.omgcof = el.bstar * c3 * math.Cos(el.argp0)

	if e0 > 1e-4 {
		c.xmcof = -2.0 / 3.0 * coef * el.bstar / eeta
	}
	c.delmo = math.Pow(1+eta*math.Cos(el.m0), 3.0)
	c.sinmo = math.Sin(el.m0)

	if !m.useSimpleModel {
		c1sq := c.c1 * c.c1
		c.d2 = 4 * aE * tsi * c1sq
		dtemp := c.d2 * tsi * c.c1 / 3.0
		c.d3 = (17*aE + s4) * dtemp
		c.d4 = 0.5 * dtemp * aE * tsi * (221*aE + 31*s4) * c.c1
		c.t3cof = c.d2 + 2*c1sq
		c.t4cof = 0.25 * (3*c.d3 + c.c1*(12*c.d2+10*c1sq))
		c.t5cof = 0.2 * (3*c.d4 + 12*c.c1*c.d3 + 6*c.d2*c.d2 + 15*c1sq*(2*c.d2+c1sq))
	}

	return c
}
