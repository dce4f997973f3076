package money

import (
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// DefaultCurrency is used when an invoice does not name one.
const DefaultCurrency = "IDR"

// NormalizeCurrency upper-cases code and falls back to DefaultCurrency when empty.
func NormalizeCurrency(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return DefaultCurrency
	}
	return code
}

// Precision returns the number of decimals amounts in code are settled with.
// Rupiah is always whole; other ISO codes follow their cash rounding and
// unknown codes use two decimals.
func Precision(code string) int32 {
	code = NormalizeCurrency(code)
	if code == DefaultCurrency {
		return 0
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return Places
	}
	scale, _ := currency.Cash.Rounding(unit)
	return int32(scale)
}

// FormatCurrency renders amount for display. IDR renders as "Rp 297.500";
// other currencies render with their ISO code and two decimals. locale is a
// BCP 47 tag; it defaults to id-ID for rupiah and en-US otherwise.
func FormatCurrency(amount float64, code, locale string) string {
	code = NormalizeCurrency(code)
	tag := localeTag(locale, code)
	p := message.NewPrinter(tag)
	if code == DefaultCurrency {
		return "Rp " + p.Sprintf("%v", number.Decimal(RoundTo(amount, 0), number.Scale(0)))
	}
	return code + " " + p.Sprintf("%v", number.Decimal(RoundTo(amount, Places), number.Scale(int(Places))))
}

func localeTag(locale, code string) language.Tag {
	if strings.TrimSpace(locale) != "" {
		if tag, err := language.Parse(locale); err == nil {
			return tag
		}
	}
	if code == DefaultCurrency {
		return language.Indonesian
	}
	return language.AmericanEnglish
}
