package session

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// MaxMinutes is the longest session accepted (one week).
const MaxMinutes = 7 * 24 * 60

// ParseMinutes reads a duration sent by a client. Numbers are truncated
// toward zero and strings contribute their leading integer ("25min" is 25).
// Values beyond ±MaxMinutes are rejected. The result may still be below
// one; callers decide whether that is valid.
func ParseMinutes(raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return inRange(int64(v))
	case int64:
		return inRange(v)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("minutes %v: %w", v, ErrInvalidDuration)
		}
		v = math.Trunc(v)
		if math.Abs(v) > MaxMinutes {
			return 0, fmt.Errorf("minutes %v: %w", v, ErrInvalidDuration)
		}
		return int(v), nil
	case json.Number:
		return ParseMinutes(v.String())
	case string:
		return leadingInt(v)
	default:
		return 0, fmt.Errorf("minutes %v: %w", raw, ErrInvalidDuration)
	}
}

func leadingInt(s string) (int, error) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)

	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, fmt.Errorf("minutes %q: %w", s, ErrInvalidDuration)
	}

	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("minutes %q: %w", s, ErrInvalidDuration)
	}
	return inRange(n)
}

func inRange(n int64) (int, error) {
	if n > MaxMinutes || n < -MaxMinutes {
		return 0, fmt.Errorf("minutes %d: %w", n, ErrInvalidDuration)
	}
	return int(n), nil
}
