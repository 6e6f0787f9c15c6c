package propagation

import (
	"math"

	"github.com/star/stargo/internal/julian"
)

// Lunar/solar third-body constants (Spacetrack Report #3 deep-space model).
const (
	zns = 1.19459e-5
	zes = 0.01675
	znl = 1.5835218e-4
	zel = 0.05490

	c1ss = 2.9864797e-6
	c1l  = 4.7968065e-7

	zsinis = 0.39785416
	zcosis = 0.91744867
	zsings = -0.98088458
	zcosgs = 0.1945905

	q22    = 1.7891679e-6
	q31    = 2.1460748e-6
	q33    = 2.2123015e-7
	root22 = 1.7891679e-6
	root32 = 3.7393792e-7
	root44 = 7.3636953e-9
	root52 = 1.1428639e-7
	root54 = 2.1765803e-9

	fasx2 = 0.13130908
	fasx4 = 2.8843198
	fasx6 = 0.37448087
	g22   = 5.7686396
	g32   = 0.95240898
	g44   = 1.8014998
	g52   = 1.0508330
	g54   = 4.4108898
)

// deepSpace holds the ~40 lunar/solar and resonance scalars plus the
// integrator seed produced once at init for a deep-space (SDP4) object
// (spec.md §3, §4.2, §4.4, §4.5).
type deepSpace struct {
	gsto float64
	zmol float64
	zmos float64

	// Lunar/solar secular rates (spec.md §4.4 names).
	sse, ssi, ssl, ssg, ssh float64

	// Solar periodics.
	se2, se3                 float64
	si2, si3                 float64
	sl2, sl3, sl4            float64
	sgh2, sgh3, sgh4         float64
	sh2, sh3                 float64

	// Lunar periodics.
	ee2, e3          float64
	xi2, xi3         float64
	xl2, xl3, xl4    float64
	xgh2, xgh3, xgh4 float64
	xh2, xh3         float64

	// Resonance constants.
	del1, del2, del3                                     float64
	d2201, d2211, d3210, d3222, d4410, d4422, d5220, d5232, d5421, d5433 float64

	// Integrator seed (design note §9: evaluated unconditionally at
	// t=0 during init, no first-run gate needed).
	xfact float64
	xlamo float64
}

// initDeepSpace computes the deep-space coefficient set: the two-iteration
// Brouwer lunar/solar constants (§4.5) followed by resonance
// classification and the resonance seed constants (§4.4).
func initDeepSpace(el *elements, m mode, c coefficients, epoch julian.Date) deepSpace {
	var ds deepSpace
	ds.gsto = epoch.GreenwichSiderealTime()

	sinim, cosim := el.sinio, el.cosio
	snodm, cnodm := math.Sin(el.raan0), math.Cos(el.raan0)
	sinomm, cosomm := math.Sin(el.argp0), math.Cos(el.argp0)
	em := el.ecc0
	emsq := em * em
	betasq := 1 - emsq
	rtemsq := math.Sqrt(betasq)

	day := epoch.DaysFromJan1_1900_12h()
	xnodce := normalizeAngle(4.5236020 - 9.2422029e-4*day)
	stem := math.Sin(xnodce)
	ctem := math.Cos(xnodce)
	zcosil := 0.91375164 - 0.03568096*ctem
	zsinil := math.Sqrt(1 - zcosil*zcosil)
	zsinhl := 0.089683511 * stem / zsinil
	zcoshl := math.Sqrt(1 - zsinhl*zsinhl)
	gam := 5.8351514 + 0.0019443680*day
	zx := 0.39785416 * stem / zsinil
	zy := zcoshl*ctem + 0.91744867*zsinhl*stem
	zx = math.Atan2(zx, zy)
	zx = gam + zx - xnodce
	zcosgl := math.Cos(zx)
	zsingl := math.Sin(zx)

	// Two-iteration Brouwer scheme: lsflg=0 solar geometry, lsflg=1 lunar.
	zcosg, zsing := zcosgs, zsings
	zcosi, zsini := zcosis, zsinis
	zcosh, zsinh := cnodm, snodm
	cc := c1ss
	xnoi := 1.0 / el.recoveredMeanMotion

	var ss1, ss2, ss3, ss4, ss5, ss6, ss7 float64
	var sz1, sz2, sz3, sz11, sz12, sz13, sz21, sz22, sz23, sz31, sz32, sz33 float64
	var s1, s2, s3, s4, s5, s6, s7 float64
	var z1, z2, z3, z11, z12, z13, z21, z22, z23, z31, z32, z33 float64

	for lsflg := 0; lsflg < 2; lsflg++ {
		a1 := zcosg*zcosh + zsing*zcosi*zsinh
		a3 := -zsing*zcosh + zcosg*zcosi*zsinh
		a7 := -zcosg*zsinh + zsing*zcosi*zcosh
		a8 := zsing * zsini
		a9 := zsing*zsinh + zcosg*zcosi*zcosh
		a10 := zcosg * zsini
		a2 := cosim*a7 + sinim*a8
		a4 := cosim*a9 + sinim*a10
		a5 := -sinim*a7 + cosim*a8
		a6 := -sinim*a9 + cosim*a10

		x1 := a1*cosomm + a2*sinomm
		x2 := a3*cosomm + a4*sinomm
		x3 := -a1*sinomm + a2*cosomm
		x4 := -a3*sinomm + a4*cosomm
		x5 := a5 * sinomm
		x6 := a6 * sinomm
		x7 := a5 * cosomm
		x8 := a6 * cosomm

		z31c := 12*x1*x1 - 3*x3*x3
		z32c := 24*x1*x2 - 6*x3*x4
		z33c := 12*x2*x2 - 3*x4*x4
		z1c := 3*(a1*a1+a2*a2) + z31c*emsq
		z2c := 6*(a1*a3+a2*a4) + z32c*emsq
		z3c := 3*(a3*a3+a4*a4) + z33c*emsq
		z11c := -6*a1*a5 + emsq*(-24*x1*x7-6*x3*x5)
		z12c := -6*(a1*a6+a3*a5) + emsq*(-24*(x2*x7+x1*x8)-6*(x3*x6+x4*x5))
		z13c := -6*a3*a6 + emsq*(-24*x2*x8-6*x4*x6)
		z21c := 6*a2*a5 + emsq*(24*x1*x5-6*x3*x7)
		z22c := 6*(a4*a5+a2*a6) + emsq*(24*(x2*x5+x1*x6)-6*(x4*x7+x3*x8))
		z23c := 6*a4*a6 + emsq*(24*x2*x6-6*x4*x8)
		z1c = z1c + z1c + betasq*z31c
		z2c = z2c + z2c + betasq*z32c
		z3c = z3c + z3c + betasq*z33c
		s3c := cc * xnoi
		s2c := -0.5 * s3c / rtemsq
		s4c := s3c * rtemsq
		s1c := -15.0 * em * s4c
		s5c := x1*x3 + x2*x4
		s6c := x2*x3 + x1*x4
		s7c := x2*x4 - x1*x3

		if lsflg == 0 {
			ss1, ss2, ss3, ss4, ss5, ss6, ss7 = s1c, s2c, s3c, s4c, s5c, s6c, s7c
			sz1, sz2, sz3 = z1c, z2c, z3c
			sz11, sz12, sz13 = z11c, z12c, z13c
			sz21, sz22, sz23 = z21c, z22c, z23c
			sz31, sz32, sz33 = z31c, z32c, z33c
			zcosg, zsing, zcosi, zsini = zcosgl, zsingl, zcosil, zsinil
			zcosh = zcoshl*cnodm + zsinhl*snodm
			zsinh = snodm*zcoshl - cnodm*zsinhl
			cc = c1l
		} else {
			s1, s2, s3, s4, s5, s6, s7 = s1c, s2c, s3c, s4c, s5c, s6c, s7c
			z1, z2, z3 = z1c, z2c, z3c
			z11, z12, z13 = z11c, z12c, z13c
			z21, z22, z23 = z21c, z22c, z23c
			z31, z32, z33 = z31c, z32c, z33c
		}
	}

	ds.zmol = normalizeAngle(4.7199672 + 0.22997150*day - gam)
	ds.zmos = normalizeAngle(6.2565837 + 0.017201977*day)

	// Solar periodics.
	ds.se2 = 2 * ss1 * ss6
	ds.se3 = 2 * ss1 * ss7
	ds.si2 = 2 * ss2 * sz12
	ds.si3 = 2 * ss2 * (sz13 - sz11)
	ds.sl2 = -2 * ss3 * sz2
	ds.sl3 = -2 * ss3 * (sz3 - sz1)
	ds.sl4 = -2 * ss3 * (-21.0 - 9.0*emsq) * zes
	ds.sgh2 = 2 * ss4 * sz32
	ds.sgh3 = 2 * ss4 * (sz33 - sz31)
	ds.sgh4 = -18.0 * ss4 * zes
	ds.sh2 = -2 * ss2 * sz22
	ds.sh3 = -2 * ss2 * (sz23 - sz21)

	// Lunar periodics.
	ds.ee2 = 2 * s1 * s6
	ds.e3 = 2 * s1 * s7
	ds.xi2 = 2 * s2 * z12
	ds.xi3 = 2 * s2 * (z13 - z11)
	ds.xl2 = -2 * s3 * z2
	ds.xl3 = -2 * s3 * (z3 - z1)
	ds.xl4 = -2 * s3 * (-21.0 - 9.0*emsq) * zel
	ds.xgh2 = 2 * s4 * z32
	ds.xgh3 = 2 * s4 * (z33 - z31)
	ds.xgh4 = -18.0 * s4 * zel
	ds.xh2 = -2 * s2 * z22
	ds.xh3 = -2 * s2 * (z23 - z21)

	// Secular rates: solar contribution first, then lunar accumulates.
	sgs := ss4*zns*(sz11+sz13-6.0) - cosim*(-zns*ss2*(sz21+sz23))
	shdqSolar := 0.0
	if !nearPolar(el.incl0) {
		shdqSolar = -zns * ss2 * (sz21 + sz23) / sinim
	}
	ds.sse = ss1 * zns * ss5
	ds.ssi = ss2 * zns * (sz11 + sz13)
	ds.ssl = -zns * ss3 * (sz1 + sz3 - 14.0 - 6.0*emsq)
	ds.ssg = sgs
	ds.ssh = shdqSolar

	dedt := s1 * znl * s5
	didt := s2 * znl * (z11 + z13)
	dmdt := -znl * s3 * (z1 + z3 - 14.0 - 6.0*emsq)
	sghl := s4 * znl * (z11 + z13 - 6.0)
	shdqLunar := 0.0
	if !nearPolar(el.incl0) {
		shdqLunar = -znl * s2 * (z21 + z23) / sinim
	}
	ds.sse += dedt
	ds.ssi += didt
	ds.ssl += dmdt
	ds.ssg += sghl
	if !nearPolar(el.incl0) {
		ds.ssg -= cosim / sinim * (-znl * s2 * (z21 + z23))
	}
	ds.ssh += shdqLunar

	if m.res == resonanceNone {
		return ds
	}

	aonv := math.Pow(el.recoveredMeanMotion/xke, 2.0/3.0)
	theta := ds.gsto
	xpidot := c.omgdot + c.xnodot

	switch m.res {
	case resonanceGeopotential12h:
		cosisq := cosim * cosim
		eoc := em * emsq
		g201 := -0.306 - (em-0.64)*0.440

		var g211, g310, g322, g410, g422, g520 float64
		if em <= 0.65 {
			g211 = 3.616 - 13.2470*em + 16.2900*emsq
			g310 = -19.302 + 117.3900*em - 228.4190*emsq + 156.5910*eoc
			g322 = -18.9068 + 109.7927*em - 214.6334*emsq + 146.5816*eoc
			g410 = -41.122 + 242.6940*em - 471.0940*emsq + 313.9530*eoc
			g422 = -146.407 + 841.8800*em - 1629.014*emsq + 1083.435*eoc
			g520 = -532.114 + 3017.977*em - 5740.032*emsq + 3708.276*eoc
		} else {
			g211 = -72.099 + 331.819*em - 508.738*emsq + 266.724*eoc
			g310 = -346.844 + 1582.851*em - 2415.925*emsq + 1246.113*eoc
			g322 = -342.585 + 1554.908*em - 2366.899*emsq + 1215.972*eoc
			g410 = -1052.797 + 4758.686*em - 7193.992*emsq + 3651.957*eoc
			g422 = -3581.690 + 16178.110*em - 24462.770*emsq + 12422.520*eoc
			if em > 0.715 {
				g520 = -5149.66 + 29936.92*em - 54087.36*emsq + 31324.56*eoc
			} else {
				g520 = 1464.74 - 4664.75*em + 3763.64*emsq
			}
		}

		var g533, g521, g532 float64
		if em < 0.7 {
			g533 = -919.22770 + 4988.6100*em - 9064.7700*emsq + 5542.21*eoc
			g521 = -822.71072 + 4568.6173*em - 8491.4146*emsq + 5337.524*eoc
			g532 = -853.66600 + 4690.2500*em - 8624.7700*emsq + 5341.4*eoc
		} else {
			g533 = -37995.780 + 161616.52*em - 229838.20*emsq + 109377.94*eoc
			g521 = -51752.104 + 218913.95*em - 309468.16*emsq + 146349.42*eoc
			g532 = -40023.880 + 170470.89*em - 242699.48*emsq + 115605.82*eoc
		}

		sini2 := sinim * sinim
		f220 := 0.75 * (1 + 2*cosim + cosisq)
		f221 := 1.5 * sini2
		f321 := 1.875 * sinim * (1 - 2*cosim - 3*cosisq)
		f322 := -1.875 * sinim * (1 + 2*cosim - 3*cosisq)
		f441 := 35.0 * sini2 * f220
		f442 := 39.3750 * sini2 * sini2
		f522 := 9.84375 * sinim * (sini2*(1-2*cosim-5*cosisq) + 0.33333333*(-2+4*cosim+6*cosisq))
		f523 := sinim * (4.92187512*sini2*(-2-4*cosim+10*cosisq) + 6.56250012*(1+2*cosim-3*cosisq))
		f542 := 29.53125 * sinim * (2 - 8*cosim + cosisq*(-12+8*cosim+10*cosisq))
		f543 := 29.53125 * sinim * (-2 - 8*cosim + cosisq*(12+8*cosim-10*cosisq))

		xno2 := el.recoveredMeanMotion * el.recoveredMeanMotion
		ainv2 := aonv * aonv
		temp1 := 3.0 * xno2 * ainv2
		temp := temp1 * root22
		ds.d2201 = temp * f220 * g201
		ds.d2211 = temp * f221 * g211
		temp1 *= aonv
		temp = temp1 * root32
		ds.d3210 = temp * f321 * g310
		ds.d3222 = temp * f322 * g322
		temp1 *= aonv
		temp = 2.0 * temp1 * root44
		ds.d4410 = temp * f441 * g410
		ds.d4422 = temp * f442 * g422
		temp1 *= aonv
		temp = temp1 * root52
		ds.d5220 = temp * f522 * g520
		ds.d5232 = temp * f523 * g532
		temp = 2.0 * temp1 * root54
		ds.d5421 = temp * f542 * g521
		ds.d5433 = temp * f543 * g533

		ds.xlamo = normalizeAngle(el.m0 + el.raan0 + el.raan0 - theta - theta)
		ds.xfact = c.xmdot + ds.ssl + 2.0*(c.xnodot+ds.ssh-thdt) - el.recoveredMeanMotion

	case resonanceSynchronous:
		g200 := 1 + emsq*(-2.5+0.8125*emsq)
		g310 := 1 + 2*emsq
		g300 := 1 + emsq*(-6.0+6.60937*emsq)
		f220 := 0.75 * (1 + cosim) * (1 + cosim)
		f311 := 0.9375*sinim*sinim*(1+3*cosim) - 0.75*(1+cosim)
		f330 := 1 + cosim
		f330 = 1.875 * f330 * f330 * f330

		del1 := 3.0 * el.recoveredMeanMotion * el.recoveredMeanMotion * aonv * aonv
		del2 := 2.0 * del1 * f220 * g200 * q22
		del3 := 3.0 * del1 * f330 * g300 * q33 * aonv
		del1 = del1 * f311 * g310 * q31 * aonv

		ds.del1, ds.del2, ds.del3 = del1, del2, del3
		ds.xlamo = normalizeAngle(el.m0 + el.raan0 + el.argp0 - theta)
		ds.xfact = c.xmdot + xpidot - thdt + ds.ssl + ds.ssg + ds.ssh - el.recoveredMeanMotion
	}

	return ds
}

// nearPolar reports whether shdq's division by sin(i) would be unstable
// (spec.md §4.5: suppressed for i < 3 deg or i > 177 deg).
func nearPolar(inclRad float64) bool {
	return inclRad < 0.0524 || inclRad > math.Pi-0.0524
}
