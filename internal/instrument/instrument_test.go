package instrument

import (
	"testing"

	"github.com/shopspring/decimal"
)

// go test -v --run TestNormalize
func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"usd/jpy":  "USDJPY",
		" EUR-USD": "EURUSD",
		"gbp_usd":  "GBPUSD",
		"XAUUSD":   "XAUUSD",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

// go test -v --run TestPrecision
func TestPrecision(t *testing.T) {
	if !IsJPYQuoted("usd/jpy") || IsJPYQuoted("JPYUSD") || IsJPYQuoted("JPY") {
		t.Fatal("IsJPYQuoted misclassified")
	}
	if Precision("EURJPY") != 2 || Precision("EURUSD") != 5 {
		t.Fatal("unexpected precision")
	}

	got := Round("USDJPY", decimal.RequireFromString("151.23789"))
	if !got.Equal(decimal.RequireFromString("151.24")) {
		t.Errorf("Round JPY = %s", got)
	}
	got = Round("EURUSD", decimal.RequireFromString("1.0850049"))
	if !got.Equal(decimal.RequireFromString("1.0850")) {
		t.Errorf("Round EURUSD = %s", got)
	}
}
