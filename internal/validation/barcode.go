// Package validation содержит функции валидации входных данных.
package validation

import "unicode"

const (
	maxBarcodeLength = 64
	// Штрихкоды экземпляров формата Codabar: 14 цифр с контрольной цифрой по алгоритму Луна.
	codabarLength = 14
)

// IsValidBarcode проверяет штрихкод издания: латинские буквы, цифры и дефис,
// не длиннее 64 символов. Чисто цифровой 14-значный штрихкод дополнительно
// проверяется по контрольной цифре.
func IsValidBarcode(barcode string) bool {
	if barcode == "" || len(barcode) > maxBarcodeLength {
		return false
	}

	digits := true
	for _, ch := range barcode {
		switch {
		case ch >= '0' && ch <= '9':
		case ch == '-', ch < unicode.MaxASCII && unicode.IsLetter(ch):
			digits = false
		default:
			return false
		}
	}

	if digits && len(barcode) == codabarLength {
		return IsValidLuhn(barcode)
	}
	return true
}

// IsValidLuhn проверяет строку цифр по алгоритму Луна.
func IsValidLuhn(number string) bool {
	if number == "" {
		return false
	}

	sum := 0
	double := false

	for i := len(number) - 1; i >= 0; i-- {
		ch := rune(number[i])
		if !unicode.IsDigit(ch) {
			return false
		}
		digit := int(ch - '0')
		if double {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		double = !double
	}

	return sum%10 == 0
}
