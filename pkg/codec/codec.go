// Package codec converts file content and file attributes into the textual
// forms metalens shows, edits and ships: base64 payloads for the analysis
// service, human byte counts, and the minute-precision local edit form of a
// modification instant.
package codec

import (
	"encoding/base64"
	"strconv"
	"strings"
	"time"
)

// EditLayout is the local-time edit form of an instant: YYYY-MM-DDTHH:mm,
// zero-padded, without seconds or zone suffix.
const EditLayout = "2006-01-02T15:04"

// parseLayouts are tried in order by ParseEditInstant. Layouts without a zone
// are interpreted in local time.
var parseLayouts = []string{
	EditLayout,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
}

// byteUnits are the 1024-based unit labels used by FormatByteCount.
var byteUnits = []string{"Bytes", "KB", "MB", "GB", "TB", "PB", "EB"}

// ToBase64 encodes arbitrary bytes with the standard padded alphabet.
func ToBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// FromBase64 decodes a string produced by ToBase64.
func FromBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// FormatByteCount renders n using binary units, choosing the largest unit
// whose scaled value is at least 1 and rounding to two decimals with
// trailing zeros dropped. Zero (and any negative count) renders as "0 Bytes".
func FormatByteCount(n int64) string {
	if n <= 0 {
		return "0 Bytes"
	}

	unit := 0
	scale := float64(1)
	for unit < len(byteUnits)-1 && float64(n) >= scale*1024 {
		scale *= 1024
		unit++
	}

	value := strconv.FormatFloat(float64(n)/scale, 'f', 2, 64)
	value = strings.TrimRight(value, "0")
	value = strings.TrimSuffix(value, ".")
	return value + " " + byteUnits[unit]
}

// FormatInstantForEdit converts an epoch-millisecond timestamp to local time
// and renders it in EditLayout. Seconds and the zone offset are discarded.
func FormatInstantForEdit(epochMillis int64) string {
	return FormatTimeForEdit(time.UnixMilli(epochMillis))
}

// FormatTimeForEdit renders t in local time using EditLayout.
func FormatTimeForEdit(t time.Time) string {
	return t.Local().Format(EditLayout)
}

// ParseEditInstant parses the edit form back to an instant. It also accepts
// the form with seconds and RFC 3339. It reports false when s matches none
// of them.
func ParseEditInstant(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range parseLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}
