// Package money переводит суммы провайдера в десятичные значения и текст писем.
package money

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FromMinor переводит сумму в минимальных единицах валюты (центах) в десятичную.
func FromMinor(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}

// Format печатает сумму с двумя знаками после точки и кодом валюты, если он известен.
func Format(amount decimal.Decimal, currency string) string {
	s := amount.StringFixed(2)
	if currency == "" {
		return s
	}
	return s + " " + strings.ToUpper(currency)
}

// FromUnix переводит секунды эпохи провайдера во время UTC. Ноль даёт нулевое время.
func FromUnix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

// FormatDate печатает дату для писем.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}
