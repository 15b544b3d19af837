package parser

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var fixedNow = time.Date(2024, 5, 20, 15, 4, 5, 0, time.UTC)

func TestNormalizeDate_Valid(t *testing.T) {
	cases := map[string]string{
		"01/03/2024":   "2024-03-01",
		"1/3/2024":     "2024-03-01",
		" 31/12/2023 ": "2023-12-31",
		"29/02/2024":   "2024-02-29",
	}
	for in, want := range cases {
		if got := NormalizeDate(in, fixedNow); got != want {
			t.Errorf("NormalizeDate(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeDate_FallsBackToToday(t *testing.T) {
	for _, in := range []string{"", "ontem", "2024-03-01", "32/01/2024", "29/02/2023", "01/13/2024", "1/2"} {
		if got := NormalizeDate(in, fixedNow); got != "2024-05-20" {
			t.Errorf("NormalizeDate(%q) = %q, want today", in, got)
		}
	}
}

func TestParseAmount(t *testing.T) {
	cases := map[string]string{
		"1.234,56":      "1234.56",
		"150,00":        "150",
		"-150,00":       "-150",
		"R$ 3.200,00":   "3200",
		`"1.234,56"`:    "1234.56",
		"12.50":         "12.5",
		"1.234":         "1234",
		"12.345.678":    "12345678",
		"-1.000":        "-1000",
		"42":            "42",
		"1 234,5":       "1234.5",
		"0,99":          "0.99",
	}
	for in, want := range cases {
		got, err := ParseAmount(in)
		if err != nil {
			t.Errorf("ParseAmount(%q) error = %v", in, err)
			continue
		}
		if !got.Equal(decimal.RequireFromString(want)) {
			t.Errorf("ParseAmount(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestParseAmount_Invalid(t *testing.T) {
	if _, err := ParseAmount(""); !errors.Is(err, ErrEmptyAmount) {
		t.Errorf("empty = %v, want ErrEmptyAmount", err)
	}
	for _, in := range []string{"abc", "1,2,3", "NaN", "--1"} {
		if _, err := ParseAmount(in); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("ParseAmount(%q) error = %v, want ErrInvalidAmount", in, err)
		}
	}
}

func TestParseDay(t *testing.T) {
	cases := map[string]string{
		"2024-03-01":           "2024-03-01",
		"01/03/2024":           "2024-03-01",
		"2024-03-01T22:10:00Z": "2024-03-01",
	}
	for in, want := range cases {
		d, ok := ParseDay(in)
		if !ok || d.Format(DateLayout) != want {
			t.Errorf("ParseDay(%q) = %v, %v, want %s", in, d, ok, want)
		}
	}
	if _, ok := ParseDay("março"); ok {
		t.Error("ParseDay should reject free text")
	}
}
