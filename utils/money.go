package utils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxMinorUnits - наибольшее значение, помещающееся в NUMERIC(15,2)
const MaxMinorUnits int64 = 999_999_999_999_999

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrAmountTooBig  = errors.New("amount out of range")
)

var hundred = decimal.NewFromInt(100)

const (
	// maxAmountLength ограничивает длину строки суммы до разбора
	maxAmountLength = 64
	// Допустимый диапазон показателя степени. Вне его Mul и Round строят
	// big.Int с числом цифр порядка показателя.
	minAmountExponent = -20
	maxAmountExponent = 15
)

// ParseMinorUnits переводит десятичную строку ("100.00") в центы.
// Дробная часть округляется до цента половиной от нуля.
func ParseMinorUnits(value string) (int64, error) {
	raw := strings.TrimSpace(value)
	if raw == "" || len(raw) > maxAmountLength {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}
	if exp := d.Exponent(); exp < minAmountExponent || exp > maxAmountExponent {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}
	cents := d.Mul(hundred).Round(0)
	if cents.Abs().GreaterThan(decimal.NewFromInt(MaxMinorUnits)) {
		return 0, fmt.Errorf("%w: %q", ErrAmountTooBig, value)
	}
	return cents.IntPart(), nil
}

// FormatMinorUnits форматирует центы как строку с двумя знаками после запятой
func FormatMinorUnits(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
