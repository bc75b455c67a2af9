package pool

import (
	"time"
)

// ParseTimestampFast parses ISO 8601 timestamps with direct byte
// arithmetic, bypassing time.Parse for the format that dominates dataset
// exports. Returns false for anything that is not ISO 8601 shaped; the
// caller falls back to layout-based parsing.
func ParseTimestampFast(b []byte) (time.Time, bool) {
	if len(b) < 10 || b[4] != '-' || b[7] != '-' {
		return time.Time{}, false
	}

	year := parseInt4(b[0:4])
	month := parseInt2(b[5:7])
	day := parseInt2(b[8:10])
	if year < 0 || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}

	var hour, minute, second, nsec int
	loc := time.UTC

	if len(b) == 10 {
		return time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc), true
	}
	if b[10] != 'T' && b[10] != ' ' {
		return time.Time{}, false
	}
	if len(b) < 19 {
		return time.Time{}, false
	}

	hour = parseInt2(b[11:13])
	minute = parseInt2(b[14:16])
	second = parseInt2(b[17:19])
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 || second < 0 || second > 60 {
		return time.Time{}, false
	}

	rest := b[19:]
	if len(rest) > 0 && rest[0] == '.' {
		fracEnd := 1
		for fracEnd < len(rest) && rest[fracEnd] >= '0' && rest[fracEnd] <= '9' {
			fracEnd++
		}
		nsec = parseFraction(rest[1:fracEnd])
		rest = rest[fracEnd:]
	}

	switch {
	case len(rest) == 0:
		// Local time without zone; treat as UTC.
	case rest[0] == 'Z' && len(rest) == 1:
		loc = time.UTC
	case rest[0] == '+' || rest[0] == '-':
		offset, ok := parseZoneOffset(rest)
		if !ok {
			return time.Time{}, false
		}
		loc = time.FixedZone("", offset)
	default:
		return time.Time{}, false
	}

	return time.Date(year, time.Month(month), day, hour, minute, second, nsec, loc), true
}

// parseZoneOffset parses +hh:mm, +hhmm, or +hh into seconds.
func parseZoneOffset(b []byte) (int, bool) {
	sign := 1
	if b[0] == '-' {
		sign = -1
	}
	rest := b[1:]

	var hours, mins int
	switch len(rest) {
	case 2:
		hours = parseInt2(rest)
	case 4:
		hours = parseInt2(rest[0:2])
		mins = parseInt2(rest[2:4])
	case 5:
		if rest[2] != ':' {
			return 0, false
		}
		hours = parseInt2(rest[0:2])
		mins = parseInt2(rest[3:5])
	default:
		return 0, false
	}
	if hours < 0 || hours > 23 || mins < 0 || mins > 59 {
		return 0, false
	}
	return sign * (hours*3600 + mins*60), true
}

// parseInt4 parses a 4-byte integer without allocation.
func parseInt4(b []byte) int {
	if len(b) != 4 {
		return -1
	}
	for _, c := range b {
		if c < '0' || c > '9' {
			return -1
		}
	}
	return int(b[0]-'0')*1000 + int(b[1]-'0')*100 + int(b[2]-'0')*10 + int(b[3]-'0')
}

// parseInt2 parses a 2-byte integer without allocation.
func parseInt2(b []byte) int {
	if len(b) != 2 {
		return -1
	}
	for _, c := range b {
		if c < '0' || c > '9' {
			return -1
		}
	}
	return int(b[0]-'0')*10 + int(b[1]-'0')
}

// parseFraction parses fractional seconds to nanoseconds.
func parseFraction(b []byte) int {
	var result int64
	multiplier := int64(100000000)
	for i := 0; i < len(b) && i < 9; i++ {
		result += int64(b[i]-'0') * multiplier
		multiplier /= 10
	}
	return int(result)
}
