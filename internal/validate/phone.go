package validate

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidFormat is returned when a phone number cannot be canonicalized.
var ErrInvalidFormat = errors.New("validate: invalid phone format")

// Phone is a canonical North American number laid out as "(1) DDD DDD DDDD".
type Phone string

// NormalizePhone strips separators and an optional leading country code "1", and
// requires exactly ten significant digits. Letters or other symbols are rejected.
func NormalizePhone(raw string) (Phone, error) {
	var digits strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == ' ', r == '-', r == '.', r == '(', r == ')', r == '+', r == '\t':
		default:
			return "", ErrInvalidFormat
		}
	}
	d := digits.String()
	if len(d) == 11 && d[0] == '1' {
		d = d[1:]
	}
	if len(d) != 10 {
		return "", ErrInvalidFormat
	}
	return Phone(fmt.Sprintf("(1) %s %s %s", d[:3], d[3:6], d[6:])), nil
}

// Digits returns the ten significant digits.
func (p Phone) Digits() string {
	s := strings.TrimPrefix(string(p), "(1) ")
	return strings.ReplaceAll(s, " ", "")
}

// E164 returns the "+1DDDDDDDDDD" form used for SMS delivery.
func (p Phone) E164() string { return "+1" + p.Digits() }

// LastFour returns the final four digits, used when reading a number back to the caller.
func (p Phone) LastFour() string {
	d := p.Digits()
	if len(d) < 4 {
		return d
	}
	return d[len(d)-4:]
}

func (p Phone) String() string { return string(p) }
