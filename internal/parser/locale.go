package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical day format of candidates.
const DateLayout = "2006-01-02"

var (
	reThousands = regexp.MustCompile(`^-?\d{1,3}(\.\d{3})+$`)

	ErrEmptyAmount   = errors.New("empty amount")
	ErrInvalidAmount = errors.New("invalid amount")
)

// NormalizeDate turns a DD/MM/YYYY value into YYYY-MM-DD. Anything else,
// including impossible calendar dates, yields the day of now.
func NormalizeDate(raw string, now time.Time) string {
	if d, ok := parseBRDate(raw); ok {
		return d.Format(DateLayout)
	}
	return now.Format(DateLayout)
}

// parseBRDate parses DD/MM/YYYY with optional zero padding.
func parseBRDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	parts := strings.Split(raw, "/")
	if len(parts) != 3 {
		return time.Time{}, false
	}
	day, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	month, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	year, err3 := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	if year < 1000 || year > 9999 || month < 1 || month > 12 || day < 1 {
		return time.Time{}, false
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if d.Day() != day || int(d.Month()) != month {
		return time.Time{}, false
	}
	return d, true
}

// ParseDay parses a YYYY-MM-DD or DD/MM/YYYY value at UTC midnight.
func ParseDay(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if d, err := time.Parse(DateLayout, raw); err == nil {
		return d, true
	}
	if len(raw) > len(DateLayout) {
		if d, err := time.Parse(time.RFC3339, raw); err == nil {
			return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return parseBRDate(raw)
}

// Today is the current day at UTC midnight.
func Today(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseAmount reads a pt-BR or plain decimal number and keeps its sign.
//
// "1.234,56" and "1234,56" use the comma as decimal point. Without a comma
// a value shaped like "1.234" or "12.345.678" is read as thousands, any
// other dot is a decimal point. A leading "R$" and inner spaces are ignored.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), `"`))
	s = strings.ReplaceAll(s, "R$", "")
	s = strings.Join(strings.Fields(s), "")
	if s == "" {
		return decimal.Zero, ErrEmptyAmount
	}

	switch {
	case strings.Contains(s, ","):
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case reThousands.MatchString(s):
		s = strings.ReplaceAll(s, ".", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	return d, nil
}
