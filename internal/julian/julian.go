// Package julian implements the Julian-date arithmetic, Greenwich sidereal
// time, and epoch bookkeeping the propagation core treats as an external
// collaborator (spec.md §6): TLE text parsing, ECI datatypes, and calendar
// math all live outside internal/propagation so the physics stays a pure
// function of a Julian date and an elapsed time.
package julian

import (
	"math"
	"time"
)

// jd1900 is the Julian date of 1899-12-31 12:00 UT, the epoch the
// deep-space lunar term counts days from (spec.md §4.5).
const jd1900 = 2415019.5

// j2000 is the Julian date of the J2000.0 epoch.
const j2000 = 2451545.0

// Date is a Julian date. The zero value is not a valid date.
type Date struct {
	jd float64
}

// FromTime converts a UTC time.Time to a Julian Date.
func FromTime(t time.Time) Date {
	t = t.UTC()
	y := float64(t.Year())
	m := float64(t.Month())
	d := float64(t.Day())
	h := float64(t.Hour())
	min := float64(t.Minute())
	sec := float64(t.Second()) + float64(t.Nanosecond())/1e9

	if m <= 2 {
		y--
		m += 12
	}
	a := math.Floor(y / 100)
	b := 2 - a + math.Floor(a/4)

	jd := math.Floor(365.25*(y+4716)) + math.Floor(30.6001*(m+1)) + d + b - 1524.5
	jd += (h + min/60.0 + sec/3600.0) / 24.0

	return Date{jd: jd}
}

// Time converts back to a UTC time.Time.
func (d Date) Time() time.Time {
	z := math.Floor(d.jd + 0.5)
	f := d.jd + 0.5 - z

	var a float64
	if z < 2299161 {
		a = z
	} else {
		alpha := math.Floor((z - 1867216.25) / 36524.25)
		a = z + 1 + alpha - math.Floor(alpha/4)
	}
	b := a + 1524
	c := math.Floor((b - 122.1) / 365.25)
	dd := math.Floor(365.25 * c)
	e := math.Floor((b - dd) / 30.6001)

	day := b - dd - math.Floor(30.6001*e) + f
	var month float64
	if e < 14 {
		month = e - 1
	} else {
		month = e - 13
	}
	var year float64
	if month > 2 {
		year = c - 4716
	} else {
		year = c - 4715
	}

	dayInt := math.Floor(day)
	frac := day - dayInt
	secTotal := frac * 86400.0
	h := math.Floor(secTotal / 3600.0)
	secTotal -= h * 3600.0
	min := math.Floor(secTotal / 60.0)
	secTotal -= min * 60.0
	sec := math.Floor(secTotal)
	nsec := math.Round((secTotal - sec) * 1e9)

	return time.Date(int(year), time.Month(month), int(dayInt), int(h), int(min), int(sec), int(nsec), time.UTC)
}

// JD returns the raw Julian date.
func (d Date) JD() float64 {
	return d.jd
}

// AddMinutes returns the Date offset by m minutes.
func (d Date) AddMinutes(m float64) Date {
	return Date{jd: d.jd + m/minutesPerDay}
}

const minutesPerDay = 1440.0

// SpanMinutes returns the number of minutes from a to b (positive if b is
// later than a).
func SpanMinutes(a, b Date) float64 {
	return (b.jd - a.jd) * minutesPerDay
}

// DaysFromJan1_1900_12h returns the number of days elapsed since
// 1900 Jan 1 12h UT, used by the deep-space lunar orbital-plane terms.
func (d Date) DaysFromJan1_1900_12h() float64 {
	return d.jd - jd1900
}

// GreenwichSiderealTime returns the Greenwich Mean Sidereal Time at this
// date, in radians, using the IAU-82 model (Vallado eq. 3-47).
func (d Date) GreenwichSiderealTime() float64 {
	t := (d.jd - j2000) / 36525.0

	gmstSec := 67310.54841 +
		(3155760000.0+8640184.812866)*t +
		0.093104*t*t -
		6.2e-6*t*t*t

	gmstSec = math.Mod(gmstSec, 86400.0)
	if gmstSec < 0 {
		gmstSec += 86400.0
	}
	return gmstSec / 86400.0 * 2.0 * math.Pi
}
