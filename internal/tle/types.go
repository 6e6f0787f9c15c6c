package tle

import "time"

// TLEEntry represents a single satellite's two-line element set, including
// the mean orbital elements decoded from its numeric fields. This is the
// `TleRecord` external collaborator the propagation core reads from
// (spec.md §6): angles in radians, mean motion in radians/minute.
type TLEEntry struct {
	NORADID int
	Name    string
	Epoch   time.Time
	Line1   string
	Line2   string

	MeanAnomalyRad   float64 // M0
	RAANRad          float64 // Omega0
	ArgPerigeeRad    float64 // omega0
	Eccentricity     float64 // e0, dimensionless
	InclinationRad   float64 // i0
	MeanMotionRadMin float64 // n0, radians/minute
	BStar            float64 // drag-like term, 1/Earth radii
}

// EpochRange represents the minimum and maximum epoch times in a dataset.
type EpochRange struct {
	Min time.Time
	Max time.Time
}

// TLEDataset represents a complete set of TLE data from a source.
type TLEDataset struct {
	Source     string
	FetchedAt  time.Time
	EpochRange EpochRange
	Satellites []TLEEntry
}
