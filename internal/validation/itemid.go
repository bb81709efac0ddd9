// Package validation содержит функции валидации входных данных.
package validation

const maxItemIDLength = 64

// IsValidItemID проверяет идентификатор товара: латиница, цифры, '-', '_' и не длиннее 64 символов.
// Идентификатор из 13 цифр считается штрихкодом EAN-13 (ISBN-13) и должен иметь верную контрольную цифру.
func IsValidItemID(id string) bool {
	if id == "" || len(id) > maxItemIDLength {
		return false
	}

	digits := true
	for i := 0; i < len(id); i++ {
		ch := id[i]
		switch {
		case ch >= '0' && ch <= '9':
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch == '-', ch == '_':
			digits = false
		default:
			return false
		}
	}

	if digits && len(id) == 13 {
		return IsValidEAN13(id)
	}
	return true
}

// IsValidEAN13 проверяет контрольную цифру штрихкода EAN-13.
func IsValidEAN13(code string) bool {
	if len(code) != 13 {
		return false
	}

	sum := 0
	for i := 0; i < 12; i++ {
		ch := code[i]
		if ch < '0' || ch > '9' {
			return false
		}
		digit := int(ch - '0')
		if i%2 == 1 {
			digit *= 3
		}
		sum += digit
	}

	last := code[12]
	if last < '0' || last > '9' {
		return false
	}

	return (10-sum%10)%10 == int(last-'0')
}
