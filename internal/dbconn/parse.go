package dbconn

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"dbbackup/internal/catalog"
)

// Every parser in this file is total: given any string input it returns
// either a valid value or a descriptive error, and never panics. RPC
// results arrive as text over the wire regardless of the server-side SQL
// type, so the client always parses textual output rather than trusting
// a driver-level type mapping.

// ParseLSN parses PostgreSQL's "%X/%X" LSN text form.
func ParseLSN(s string) (catalog.LSN, error) {
	return catalog.ParseLSN(s)
}

// ParseBool parses the subset of textual booleans PostgreSQL's text
// output format actually produces ("t"/"f") plus the Go-ish spellings a
// driver might hand back depending on scan target, so the parser stays
// total regardless of how the value arrived.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "t", "true", "yes", "on", "1":
		return true, nil
	case "f", "false", "no", "off", "0":
		return false, nil
	default:
		return false, fmt.Errorf("dbconn: invalid boolean %q", s)
	}
}

// ParseUint32 parses a decimal unsigned 32-bit integer.
func ParseUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("dbconn: invalid uint32 %q: %w", s, err)
	}
	return uint32(v), nil
}

// byteUnitMultipliers mirrors the suffixes PostgreSQL GUCs report for
// memory/storage settings (e.g. "128MB", "8kB").
var byteUnitMultipliers = map[string]int64{
	"B":  1,
	"kB": 1 << 10,
	"MB": 1 << 20,
	"GB": 1 << 30,
	"TB": 1 << 40,
}

// ParseByteUnit parses a GUC value with an optional unit suffix
// ("8kB", "128MB", "4096") into a byte count. Total: unknown suffixes and
// malformed numbers return a typed error rather than silently truncating.
func ParseByteUnit(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("dbconn: empty byte-with-unit value")
	}
	for _, suffix := range []string{"TB", "GB", "MB", "kB", "B"} {
		if strings.HasSuffix(s, suffix) {
			numPart := strings.TrimSpace(strings.TrimSuffix(s, suffix))
			n, err := strconv.ParseInt(numPart, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("dbconn: invalid byte-with-unit value %q: %w", s, err)
			}
			return n * byteUnitMultipliers[suffix], nil
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("dbconn: invalid byte-with-unit value %q: %w", s, err)
	}
	return n, nil
}

// durationUnitMultipliers mirrors the suffixes PostgreSQL GUCs report for
// time-valued settings (e.g. "5min", "30s", "1h").
var durationUnitMultipliers = map[string]time.Duration{
	"ms":  time.Millisecond,
	"s":   time.Second,
	"min": time.Minute,
	"h":   time.Hour,
	"d":   24 * time.Hour,
}

// ParseDurationGUC parses a GUC value with an optional time unit suffix
// ("5min", "30s", "300") into a time.Duration. A bare integer is taken in
// the GUC's base unit, seconds, matching what SHOW checkpoint_timeout
// reports when unit display is disabled.
func ParseDurationGUC(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("dbconn: empty duration value")
	}
	for _, suffix := range []string{"min", "ms", "s", "h", "d"} {
		if strings.HasSuffix(s, suffix) {
			numPart := strings.TrimSpace(strings.TrimSuffix(s, suffix))
			n, err := strconv.ParseInt(numPart, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("dbconn: invalid duration value %q: %w", s, err)
			}
			return time.Duration(n) * durationUnitMultipliers[suffix], nil
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("dbconn: invalid duration value %q: %w", s, err)
	}
	return time.Duration(n) * time.Second, nil
}

// pgTimestampLayouts covers the textual timestamp forms PostgreSQL emits
// depending on DateStyle; ISO (the backup.control convention per §6 of the
// control-file format) is tried first.
var pgTimestampLayouts = []string{
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05.999999-07:00",
	time.RFC3339,
}

// ParseTimestamp parses a PostgreSQL timestamptz text value, trying each
// known layout in turn. Total: returns a typed error if none match.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var lastErr error
	for _, layout := range pgTimestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, fmt.Errorf("dbconn: invalid timestamp %q: %w", s, lastErr)
}

// ParseBase36 parses a base-36 backup ID back into its start-time.
func ParseBase36(s string) (int64, error) {
	return catalog.DecodeID(s)
}

// ParseByteaEscape decodes PostgreSQL's traditional bytea "escape" text
// format (`\nnn` octal byte escapes, `\\` for a literal backslash) into
// raw bytes. pgx normally hands back bytea columns pre-decoded as []byte,
// but ptrack bitmap fetches that flow through text-mode RPC wrappers (e.g.
// a SHOW-style diagnostic dump) can arrive in this escaped text form.
func ParseByteaEscape(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, `\x`)
	if isHex(s) {
		return parseHexBytea(s)
	}
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); {
		c := s[i]
		if c != '\\' {
			out = append(out, c)
			i++
			continue
		}
		if i+1 >= len(s) {
			return nil, fmt.Errorf("dbconn: truncated escape at byte %d in bytea literal", i)
		}
		if s[i+1] == '\\' {
			out = append(out, '\\')
			i += 2
			continue
		}
		if i+3 >= len(s) {
			return nil, fmt.Errorf("dbconn: truncated octal escape at byte %d in bytea literal", i)
		}
		v, err := strconv.ParseUint(s[i+1:i+4], 8, 8)
		if err != nil {
			return nil, fmt.Errorf("dbconn: invalid octal escape %q in bytea literal: %w", s[i+1:i+4], err)
		}
		out = append(out, byte(v))
		i += 4
	}
	return out, nil
}

func isHex(s string) bool {
	if len(s) == 0 || len(s)%2 != 0 {
		return false
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}

func parseHexBytea(s string) ([]byte, error) {
	out := make([]byte, len(s)/2)
	for i := 0; i < len(out); i++ {
		v, err := strconv.ParseUint(s[i*2:i*2+2], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("dbconn: invalid hex byte %q in bytea literal: %w", s[i*2:i*2+2], err)
		}
		out[i] = byte(v)
	}
	return out, nil
}
