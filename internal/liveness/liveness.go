// Package liveness holds the pure time arithmetic shared by the drain
// pipeline and the admin CLI: monitor expiry, timestamp presentation and
// the remote sweep-schedule estimate. No I/O happens here.
package liveness

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TimeLayout is the single display format used everywhere a timestamp is
// shown (listings, archive, email), so values in different places are
// always comparable.
const TimeLayout = "2006-01-02 15:04:05"

// DeathTime returns the instant (epoch seconds) after which a monitor is
// considered expired. A zero timeout means immediate expiry, which is what
// test-alert injection relies on.
func DeathTime(lastPing, timeoutHours int64) int64 {
	return lastPing + timeoutHours*3600
}

// IsExpired reports whether now is strictly past the death time. A monitor
// exactly at its death time is still alive.
func IsExpired(now, deathTime int64) bool {
	return now > deathTime
}

// Timezone selects the zone every displayed timestamp is rendered in.
// The zero value renders in the system local zone.
type Timezone struct {
	utc bool
	loc *time.Location
}

// ParseTimezone recognizes the config values "utc" and "local" (default).
func ParseTimezone(mode string) (Timezone, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "local":
		return Timezone{loc: time.Local}, nil
	case "utc":
		return Timezone{utc: true, loc: time.UTC}, nil
	default:
		return Timezone{}, fmt.Errorf("unknown timezone mode %q (want utc or local)", mode)
	}
}

func (z Timezone) location() *time.Location {
	if z.loc == nil {
		return time.Local
	}
	return z.loc
}

// IsUTC reports whether UTC mode is active, so callers can label output.
func (z Timezone) IsUTC() bool {
	return z.utc
}

// FormatTime renders an epoch timestamp in the selected zone.
func (z Timezone) FormatTime(epoch int64) string {
	return time.Unix(epoch, 0).In(z.location()).Format(TimeLayout)
}

// Format renders an absolute time in the selected zone.
func (z Timezone) Format(t time.Time) string {
	return t.In(z.location()).Format(TimeLayout)
}

// Label names the zone timestamps are rendered in, for column headers and
// inline markers.
func (z Timezone) Label() string {
	if z.utc {
		return "UTC"
	}
	return time.Now().In(z.location()).Format("MST")
}

var timestampRe = regexp.MustCompile(`\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}`)

// ConvertBody rewrites an alert body for display. Remote alert bodies carry
// UTC timestamps; in local mode every embedded timestamp substring is
// converted to the local zone and UTC labels are swapped to the local zone
// label. In UTC mode the body passes through untouched.
func (z Timezone) ConvertBody(body string) string {
	if z.utc {
		return body
	}
	converted := timestampRe.ReplaceAllStringFunc(body, func(m string) string {
		t, err := time.ParseInLocation(TimeLayout, m, time.UTC)
		if err != nil {
			return m
		}
		return t.In(z.location()).Format(TimeLayout)
	})
	return strings.ReplaceAll(converted, "UTC", z.Label())
}

// NextSweepETA estimates the minutes until the remote service's next sweep
// from a minute-only cron field: "N" fires at a fixed minute, "*/N" every N
// minutes, "*" every minute. Malformed or unsupported fields fall back to
// the minutes remaining in the current hour. Operator display only; nothing
// is gated on the result.
func NextSweepETA(field string, nowMinute int) int {
	fallback := 60 - nowMinute

	field = strings.TrimSpace(field)
	switch {
	case field == "*":
		return 1
	case strings.HasPrefix(field, "*/"):
		n, err := strconv.Atoi(field[2:])
		if err != nil || n <= 0 || n > 59 {
			return fallback
		}
		return n - nowMinute%n
	default:
		m, err := strconv.Atoi(field)
		if err != nil || m < 0 || m > 59 {
			return fallback
		}
		d := (m - nowMinute + 60) % 60
		if d == 0 {
			d = 60
		}
		return d
	}
}
