package compiler

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// maxEscapeDigits is the longest hex code an escape may carry.
const maxEscapeDigits = 8

// DecodeString expands the escapes in the body of a string literal. A
// backslash starts an escape of one to eight upper-case hex digits
// closed by a slash, naming a code point: \A/ is a newline and \22/ a
// double quote. Every other character stands for itself.
func DecodeString(body string) (string, error) {
	if !strings.ContainsRune(body, '\\') {
		return body, nil
	}
	var sb strings.Builder
	for i := 0; i < len(body); {
		if body[i] != '\\' {
			r, size := utf8.DecodeRuneInString(body[i:])
			sb.WriteRune(r)
			i += size
			continue
		}
		start := i
		i++
		code, digits := 0, 0
		for {
			if i >= len(body) {
				return "", fmt.Errorf("Malformed escape sequence: %s", body[start:])
			}
			c := body[i]
			i++
			if c == '/' {
				break
			}
			d, ok := hexDigit(c)
			if !ok {
				return "", fmt.Errorf("Malformed escape sequence: %s", body[start:i])
			}
			digits++
			if digits <= maxEscapeDigits {
				code = code<<4 | d
			}
		}
		switch {
		case digits == 0:
			return "", fmt.Errorf("Escape sequence has no digits: %s", body[start:i])
		case digits > maxEscapeDigits:
			return "", fmt.Errorf("Escape sequence has too many digits: %s", body[start:i])
		case code > utf8.MaxRune || !utf8.ValidRune(rune(code)):
			return "", fmt.Errorf("Escape sequence is not a character: %s", body[start:i])
		}
		sb.WriteRune(rune(code))
	}
	return sb.String(), nil
}

func hexDigit(c byte) (int, bool) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), true
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10, true
	}
	return 0, false
}
