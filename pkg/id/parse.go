package id

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid is returned by Parse for malformed input.
var ErrInvalid = errors.New("id: invalid identifier")

// Parse accepts "{xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx}", the same without
// braces, or 32 hex digits. Hex digits are case-insensitive.
func Parse(s string) (ID, error) {
	raw := strings.TrimSpace(s)
	if strings.HasPrefix(raw, "{") || strings.HasSuffix(raw, "}") {
		if len(raw) < 2 || raw[0] != '{' || raw[len(raw)-1] != '}' {
			return Nil, fmt.Errorf("%w: unbalanced braces in %q", ErrInvalid, s)
		}
		raw = raw[1 : len(raw)-1]
	}
	switch len(raw) {
	case 36:
		for _, at := range []int{8, 13, 18, 23} {
			if raw[at] != '-' {
				return Nil, fmt.Errorf("%w: expected '-' at %d in %q", ErrInvalid, at, s)
			}
		}
		raw = strings.ReplaceAll(raw, "-", "")
		if len(raw) != 32 {
			return Nil, fmt.Errorf("%w: misplaced '-' in %q", ErrInvalid, s)
		}
	case 32:
	default:
		return Nil, fmt.Errorf("%w: %q", ErrInvalid, s)
	}

	var out ID
	for k := 0; k < 16; k++ {
		hi, ok1 := fromHex(raw[2*k])
		lo, ok2 := fromHex(raw[2*k+1])
		if !ok1 || !ok2 {
			return Nil, fmt.Errorf("%w: non-hex digit in %q", ErrInvalid, s)
		}
		out[k] = hi<<4 | lo
	}
	return out, nil
}

// MustParse is Parse for constants; it panics on error.
func MustParse(s string) ID {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func fromHex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
