package propagation

import (
	"math"

	"github.com/star/stargo/internal/vector"
)

// propagateState is the per-call entry point for both branches: it applies
// the shared drag-secular update, layers in the deep-space lunar/solar
// perturbation and resonance integrator when required, solves Kepler's
// equation for the true/eccentric longitude, and assembles the short-period
// corrected ECI position and velocity (spec.md §4.3, §4.6).
func propagateState(el *elements, c coefficients, m mode, ds deepSpace, intg *integratorState, t float64) (vector.Vector3, vector.Vector3, *Error) {
	xmdf := el.m0 + c.xmdot*t
	argpdf := el.argp0 + c.omgdot*t
	nodedf := el.raan0 + c.xnodot*t
	argpm := argpdf
	mm := xmdf
	t2 := t * t
	nodem := nodedf + c.xnodcf*t2
	tempa := 1.0 - c.c1*t
	tempe := el.bstar * c.c4 * t
	templ := c.t2cof * t2

	if !m.useSimpleModel {
		delomg := c.omgcof * t
		delmtemp := 1.0 + c.eta*math.Cos(xmdf)
		delm := c.xmcof * (delmtemp*delmtemp*delmtemp - c.delmo)
		temp := delomg + delm
		mm = xmdf + temp
		argpm = argpdf - temp
		t3 := t2 * t
		t4 := t3 * t
		tempa -= c.d2*t2 + c.d3*t3 + c.d4*t4
		tempe += el.bstar * c.c5 * (math.Sin(mm) - c.sinmo)
		templ += c.t3cof*t3 + t4*(c.t4cof+t*c.t5cof)
	}

	em := el.ecc0
	inclm := el.incl0
	nm := el.recoveredMeanMotion

	if m.useDeepSpace {
		em, inclm, nm = secularUpdate(el, c, m, ds, t, &argpm, &nodem, &mm, intg)
	}

	if nm <= 0 {
		return vector.Vector3{}, vector.Vector3{}, newError(InternalError, "mean motion went non-positive")
	}

	am := math.Pow(xke/nm, 2.0/3.0) * tempa * tempa
	nm = xke / math.Pow(am, 1.5)
	em -= tempe

	if em >= 1.0 || em < -0.001 {
		return vector.Vector3{}, vector.Vector3{}, newError(EccentricityOutOfRange, "recovered eccentricity %g out of range", em)
	}
	if am < 0.95 {
		return vector.Vector3{}, vector.Vector3{}, newError(Decayed, "recovered semi-major axis %g Earth radii indicates orbital decay", am)
	}
	if em < 1.0e-6 {
		em = 1.0e-6
	}

	mm += el.recoveredMeanMotion * templ
	xlm := mm + argpm + nodem
	if !m.useDeepSpace && xlm <= 0 {
		return vector.Vector3{}, vector.Vector3{}, newError(InternalError, "mean longitude went non-positive")
	}
	nodem = normalizeAngle(nodem)
	argpm = normalizeAngle(argpm)
	xlm = normalizeAngle(xlm)
	mm = normalizeAngle(xlm - argpm - nodem)

	ep := em
	xincp := inclm
	argpp := argpm
	nodep := nodem
	mp := mm

	x1mth2 := c.x1mth2
	x7thm1 := c.x7thm1
	con41 := c.x3thm1
	aycof := c.aycof
	xlcof := c.xlcof

	if m.useDeepSpace {
		applyPeriodics(ds, t, &ep, &xincp, &argpp, &nodep, &mp)
		if xincp < 0 {
			xincp = -xincp
			nodep += math.Pi
			argpp -= math.Pi
		}
		if ep < 0 || ep > 1 {
			return vector.Vector3{}, vector.Vector3{}, newError(EccentricityOutOfRange, "post-periodics eccentricity %g out of range", ep)
		}

		sinip := math.Sin(xincp)
		cosip := math.Cos(xincp)
		aycof = 0.25 * a3ovk2 * sinip
		denom := cosip + 1.0
		if math.Abs(denom) <= 1.5e-12 {
			denom = 1.5e-12
		}
		xlcof = 0.125 * a3ovk2 * sinip * (3 + 5*cosip) / denom

		cosisq := cosip * cosip
		con41 = 3*cosisq - 1
		x1mth2 = 1 - cosisq
		x7thm1 = 7*cosisq - 1
	}

	axnl := ep * math.Cos(argpp)
	temp := 1.0 / (am * (1 - ep*ep))
	aynl := ep*math.Sin(argpp) + temp*aycof
	xl := mp + argpp + nodep + temp*xlcof*axnl

	// Kepler iteration on E: U = E - (axn*sinE - ayn*cosE). Iteration 0 takes
	// a first-order Newton-Raphson step clamped to 1.25*sqrt(axn^2+ayn^2);
	// later iterations use the second-order step that folds in the previous
	// esine correction (spec.md §4.6).
	u := normalizeAngle(xl - nodep)
	eo1 := u
	clamp := 1.25 * math.Sqrt(axnl*axnl+aynl*aynl)
	var sineo1, coseo1, esine, fdot, f, delta float64
	tem5 := 9999.9
	for ktr := 0; ktr < keplerMaxIter && math.Abs(tem5) >= keplerTol; ktr++ {
		sineo1 = math.Sin(eo1)
		coseo1 = math.Cos(eo1)
		esine = axnl*sineo1 - aynl*coseo1
		fdot = 1.0 - axnl*coseo1 - aynl*sineo1
		f = u - eo1 + esine
		if ktr == 0 {
			tem5 = f / fdot
			if math.Abs(tem5) > clamp {
				tem5 = math.Copysign(clamp, tem5)
			}
		} else {
			tem5 = f / (fdot + 0.5*esine*delta)
		}
		delta = tem5
		eo1 += tem5
	}

	ecose := axnl*coseo1 + aynl*sineo1
	esine = axnl*sineo1 - aynl*coseo1
	el2 := axnl*axnl + aynl*aynl
	pl := am * (1 - el2)
	if pl < 0 {
		return vector.Vector3{}, vector.Vector3{}, newError(InternalError, "semi-latus rectum went negative")
	}

	rl := am * (1 - ecose)
	rdotl := math.Sqrt(am) * esine / rl
	rvdotl := math.Sqrt(pl) / rl
	betal := math.Sqrt(1 - el2)
	temp = esine / (1 + betal)
	sinu := am / rl * (sineo1 - aynl - axnl*temp)
	cosu := am / rl * (coseo1 - axnl + aynl*temp)
	su := math.Atan2(sinu, cosu)
	sin2u := (cosu + cosu) * sinu
	cos2u := 1 - 2*sinu*sinu
	temp = 1.0 / pl
	temp1 := 0.5 * ck2 * temp
	temp2 := temp1 * temp

	mrt := rl*(1-1.5*temp2*betal*con41) + 0.5*temp1*x1mth2*cos2u
	su -= 0.25 * temp2 * x7thm1 * sin2u
	xnode := nodep + 1.5*temp2*math.Cos(xincp)*sin2u
	xinc := xincp + 1.5*temp2*math.Cos(xincp)*math.Sin(xincp)*cos2u
	mvt := rdotl - nm*temp1*x1mth2*sin2u/xke
	rvdot := rvdotl + nm*temp1*(x1mth2*cos2u+1.5*con41)/xke

	if mrt < 1.0 {
		return vector.Vector3{}, vector.Vector3{}, newError(Decayed, "orbit radius %g Earth radii below surface", mrt)
	}

	sinsu, cossu := math.Sin(su), math.Cos(su)
	snod, cnod := math.Sin(xnode), math.Cos(xnode)
	sini, cosi := math.Sin(xinc), math.Cos(xinc)
	xmx := -snod * cosi
	xmy := cnod * cosi

	ux := xmx*sinsu + cnod*cossu
	uy := xmy*sinsu + snod*cossu
	uz := sini * sinsu
	vx := xmx*cossu - cnod*sinsu
	vy := xmy*cossu - snod*sinsu
	vz := sini * cossu

	vkmpersec := xkmper * xke / 60.0

	pos := vector.Vector3{
		X: mrt * ux * xkmper,
		Y: mrt * uy * xkmper,
		Z: mrt * uz * xkmper,
	}
	vel := vector.Vector3{
		X: (mvt*ux + rvdot*vx) * vkmpersec,
		Y: (mvt*uy + rvdot*vy) * vkmpersec,
		Z: (mvt*uz + rvdot*vz) * vkmpersec,
	}

	return pos, vel, nil
}
