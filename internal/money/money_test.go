package money

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateNumberAcceptsNumericInputs(t *testing.T) {
	cases := []struct {
		name  string
		value any
		want  float64
	}{
		{"float", 12.5, 12.5},
		{"int", 3, 3},
		{"string", " 1500.25 ", 1500.25},
		{"json number", json.Number("42"), 42},
		{"number", N(7), 7},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ValidateNumber(tc.value, "amount", false)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestValidateNumberRejectsBadInputs(t *testing.T) {
	cases := []struct {
		name      string
		value     any
		allowZero bool
	}{
		{"nil", nil, true},
		{"garbage string", "sepuluh", true},
		{"empty string", "", true},
		{"nan", math.NaN(), true},
		{"inf", math.Inf(1), true},
		{"negative", -1.0, true},
		{"zero not allowed", 0.0, false},
		{"unset number", Number{}, true},
		{"unparsed number", Number{Raw: "abc"}, true},
		{"out of range", MaxAmount * 10, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateNumber(tc.value, "quantity", tc.allowZero)
			require.Error(t, err)
			require.Equal(t, KindInputValidation, KindOf(err))
			require.Equal(t, "quantity", FieldOf(err))
		})
	}
}

func TestValidateNumberAllowsZero(t *testing.T) {
	got, err := ValidateNumber(0, "unitPrice", true)
	require.NoError(t, err)
	require.Zero(t, got)
}

func TestRound(t *testing.T) {
	require.Equal(t, 1.01, Round(1.005))
	require.Equal(t, 2.68, Round(2.675))
	require.Equal(t, 0.3, Round(0.1+0.2))
	require.Equal(t, -1.01, Round(-1.005))
	require.Equal(t, 30000.0, RoundTo(29999.5, 0))
}

func TestArithmeticHelpers(t *testing.T) {
	require.Equal(t, 27500.0, Percent(250000, 11, Places))
	require.Equal(t, 0.3, Sum(0.1, 0.2))
	require.Equal(t, 66999.33, Sub(99999, 32999.67))
	require.Equal(t, 0.0, AbsDiff(297500, 297500))
	require.Equal(t, 0, Cmp(10.001, 10))
	require.Equal(t, 200000.0, Mul(2, 100000))
}

func TestNumberUnmarshal(t *testing.T) {
	var payload struct {
		A Number `json:"a"`
		B Number `json:"b"`
		C Number `json:"c"`
		D Number `json:"d"`
		E Number `json:"e"`
	}
	err := json.Unmarshal([]byte(`{"a": 2, "b": "150000", "c": null, "d": "dua", "e": ""}`), &payload)
	require.NoError(t, err)

	require.Equal(t, N(2), payload.A)
	require.Equal(t, N(150000), payload.B)
	require.False(t, payload.C.Present())
	require.False(t, payload.D.Valid)
	require.Equal(t, "dua", payload.D.Raw)
	require.False(t, payload.E.Present())

	out, err := json.Marshal(payload)
	require.NoError(t, err)
	require.JSONEq(t, `{"a":2,"b":150000,"c":null,"d":"dua","e":null}`, string(out))
}

func TestErrorWrapsSentinel(t *testing.T) {
	sentinel := errors.New("boom")
	err := Violation(sentinel)
	require.ErrorIs(t, err, sentinel)
	require.Equal(t, KindInvariantViolation, KindOf(err))
	require.Equal(t, "boom", err.Error())
	require.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestFormatCurrency(t *testing.T) {
	require.Equal(t, "Rp 297.500", FormatCurrency(297500, "IDR", ""))
	require.Equal(t, "Rp 1.000.000", FormatCurrency(999999.6, "idr", "id-ID"))
	require.Equal(t, "USD 1,234.50", FormatCurrency(1234.5, "USD", ""))
	require.Equal(t, "Rp 0", FormatCurrency(0, "", ""))
}

func TestPrecision(t *testing.T) {
	require.Equal(t, int32(0), Precision("IDR"))
	require.Equal(t, int32(0), Precision(""))
	require.Equal(t, int32(2), Precision("USD"))
	require.Equal(t, int32(2), Precision("XYZ1"))
}
