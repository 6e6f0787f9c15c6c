package propagation

import "math"

// applyPeriodics adds the lunar/solar periodic corrections to the
// secularly-updated mean elements (spec.md §4.5). Below 0.2 rad inclination
// the direct node/perigee split is singular, so it switches to the Lyddane
// modification, tracking (alpha, beta) = (sin i sin Omega, sin i cos Omega)
// instead of differencing node and perigee independently.
func applyPeriodics(ds deepSpace, t float64, em, inclm, argpm, nodem, mm *float64) {
	zm := ds.zmos + zns*t
	zf := zm + 2.0*zes*math.Sin(zm)
	sinzf := math.Sin(zf)
	f2 := 0.5*sinzf*sinzf - 0.25
	f3 := -0.5 * sinzf * math.Cos(zf)
	ses := ds.se2*f2 + ds.se3*f3
	sis := ds.si2*f2 + ds.si3*f3
	sls := ds.sl2*f2 + ds.sl3*f3 + ds.sl4*sinzf
	sghs := ds.sgh2*f2 + ds.sgh3*f3 + ds.sgh4*sinzf
	shs := ds.sh2*f2 + ds.sh3*f3

	zm = ds.zmol + znl*t
	zf = zm + 2.0*zel*math.Sin(zm)
	sinzf = math.Sin(zf)
	f2 = 0.5*sinzf*sinzf - 0.25
	f3 = -0.5 * sinzf * math.Cos(zf)
	sel := ds.ee2*f2 + ds.e3*f3
	sil := ds.xi2*f2 + ds.xi3*f3
	sll := ds.xl2*f2 + ds.xl3*f3 + ds.xl4*sinzf
	sghl := ds.xgh2*f2 + ds.xgh3*f3 + ds.xgh4*sinzf
	shll := ds.xh2*f2 + ds.xh3*f3

	pe := ses + sel
	pinc := sis + sil
	pl := sls + sll
	pgh := sghs + sghl
	ph := shs + shll

	*inclm += pinc
	*em += pe
	sinip := math.Sin(*inclm)
	cosip := math.Cos(*inclm)

	if *inclm >= 0.2 {
		ph /= sinip
		pgh -= cosip * ph
		*argpm += pgh
		*nodem += ph
		*mm += pl
		return
	}

	sinop := math.Sin(*nodem)
	cosop := math.Cos(*nodem)
	alfdp := sinip*sinop + ph*cosop + pinc*cosip*sinop
	betdp := sinip*cosop - ph*sinop + pinc*cosip*cosop

	xnoh := normalizeAngle(*nodem)
	*nodem = math.Atan2(alfdp, betdp)
	if *nodem < 0 {
		*nodem += twoPi
	}
	if math.Abs(xnoh-*nodem) > math.Pi {
		if *nodem < xnoh {
			*nodem += twoPi
		} else {
			*nodem -= twoPi
		}
	}

	xls := *mm + *argpm + cosip**nodem
	dls := pl + pgh - pinc**nodem*sinip
	xls += dls
	*mm += pl
	*argpm = xls - *mm - cosip**nodem
}
