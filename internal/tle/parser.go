package tle

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
)

// Parse reads 3-line NORAD TLE format from r and returns parsed entries.
// Malformed entries are skipped with a warning log.
func Parse(r io.Reader, logger *slog.Logger) ([]TLEEntry, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading TLE data: %w", err)
	}

	var entries []TLEEntry
	for i := 0; i+2 < len(lines); {
		name := lines[i]
		line1 := lines[i+1]
		line2 := lines[i+2]

		// Validate line prefixes.
		if !strings.HasPrefix(line1, "1 ") || !strings.HasPrefix(line2, "2 ") {
			// Try to find next valid triplet.
			logger.Warn("skipping malformed TLE entry", "line_index", i, "name", name)
			i++
			continue
		}

		// Extract NORAD ID from line1 cols 3-7 (0-indexed: 2..7).
		noradStr := strings.TrimSpace(line1[2:7])
		noradID, err := strconv.Atoi(noradStr)
		if err != nil {
			logger.Warn("skipping TLE entry with invalid NORAD ID", "norad_str", noradStr, "name", name)
			i += 3
			continue
		}

		// Extract epoch from line1 cols 19-32 (0-indexed: 18..32).
		if len(line1) < 32 {
			logger.Warn("skipping TLE entry with short line1", "name", name)
			i += 3
			continue
		}
		epochStr := strings.TrimSpace(line1[18:32])
		epoch, err := parseEpoch(epochStr)
		if err != nil {
			logger.Warn("skipping TLE entry with invalid epoch", "epoch_str", epochStr, "name", name, "error", err)
			i += 3
			continue
		}

		entry := TLEEntry{
			NORADID: noradID,
			Name:    strings.TrimSpace(name),
			Epoch:   epoch,
			Line1:   line1,
			Line2:   line2,
		}

		if err := parseMeanElements(&entry); err != nil {
			logger.Warn("skipping TLE entry with invalid orbital elements", "name", name, "error", err)
			i += 3
			continue
		}

		entries = append(entries, entry)
		i += 3
	}

	return entries, nil
}

// ParseEntry builds a TLEEntry directly from a pair of TLE lines, without
// requiring the leading name line Parse expects. Used when a caller already
// has line1/line2 in hand (e.g. from a stored dataset entry).
func ParseEntry(line1, line2 string, noradID int) (TLEEntry, error) {
	if !strings.HasPrefix(line1, "1 ") || !strings.HasPrefix(line2, "2 ") {
		return TLEEntry{}, fmt.Errorf("line prefixes invalid")
	}
	if len(line1) < 32 {
		return TLEEntry{}, fmt.Errorf("line1 too short")
	}
	epoch, err := parseEpoch(strings.TrimSpace(line1[18:32]))
	if err != nil {
		return TLEEntry{}, fmt.Errorf("invalid epoch: %w", err)
	}
	entry := TLEEntry{
		NORADID: noradID,
		Epoch:   epoch,
		Line1:   line1,
		Line2:   line2,
	}
	if err := parseMeanElements(&entry); err != nil {
		return TLEEntry{}, fmt.Errorf("invalid orbital elements: %w", err)
	}
	return entry, nil
}

// parseMeanElements decodes the numeric orbital element fields from a TLE's
// two data lines into radians/minutes, per the fixed-column TLE format.
func parseMeanElements(e *TLEEntry) error {
	line1, line2 := e.Line1, e.Line2
	if len(line1) < 61 || len(line2) < 63 {
		return fmt.Errorf("line too short for numeric fields")
	}

	bstarMantissa, err := strconv.ParseFloat(strings.TrimSpace(line1[53:59]), 64)
	if err != nil {
		return fmt.Errorf("invalid B* mantissa: %w", err)
	}
	bstarExp, err := strconv.ParseInt(strings.TrimSpace(line1[59:61]), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid B* exponent: %w", err)
	}
	e.BStar = bstarMantissa * 1e-5 * math.Pow(10, float64(bstarExp))

	inclDeg, err := strconv.ParseFloat(strings.TrimSpace(line2[8:16]), 64)
	if err != nil {
		return fmt.Errorf("invalid inclination: %w", err)
	}
	raanDeg, err := strconv.ParseFloat(strings.TrimSpace(line2[17:25]), 64)
	if err != nil {
		return fmt.Errorf("invalid RAAN: %w", err)
	}
	ecc, err := strconv.ParseFloat("0."+strings.TrimSpace(line2[26:33]), 64)
	if err != nil {
		return fmt.Errorf("invalid eccentricity: %w", err)
	}
	argpDeg, err := strconv.ParseFloat(strings.TrimSpace(line2[34:42]), 64)
	if err != nil {
		return fmt.Errorf("invalid argument of perigee: %w", err)
	}
	maDeg, err := strconv.ParseFloat(strings.TrimSpace(line2[43:51]), 64)
	if err != nil {
		return fmt.Errorf("invalid mean anomaly: %w", err)
	}
	meanMotionRevDay, err := strconv.ParseFloat(strings.TrimSpace(line2[52:63]), 64)
	if err != nil {
		return fmt.Errorf("invalid mean motion: %w", err)
	}

	const deg2rad = math.Pi / 180.0
	e.InclinationRad = inclDeg * deg2rad
	e.RAANRad = raanDeg * deg2rad
	e.Eccentricity = ecc
	e.ArgPerigeeRad = argpDeg * deg2rad
	e.MeanAnomalyRad = maDeg * deg2rad
	e.MeanMotionRadMin = meanMotionRevDay * twoPi / minutesPerDay

	return nil
}

const (
	twoPi         = 2 * math.Pi
	minutesPerDay = 1440.0
)

// parseEpoch converts a TLE epoch string in YYDDD.DDDDDDDD format to time.Time.
// Year 00-56 → 2000s, 57-99 → 1900s.
func parseEpoch(s string) (time.Time, error) {
	if len(s) < 5 {
		return time.Time{}, fmt.Errorf("epoch string too short: %q", s)
	}

	yearStr := s[:2]
	dayStr := s[2:]

	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch year %q: %w", yearStr, err)
	}

	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}

	dayOfYear, err := strconv.ParseFloat(dayStr, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch day %q: %w", dayStr, err)
	}

	// Start of the year, then add fractional days.
	t := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	// dayOfYear is 1-based: day 1 = Jan 1.
	dur := time.Duration((dayOfYear - 1) * float64(24*time.Hour))
	t = t.Add(dur)

	return t, nil
}
