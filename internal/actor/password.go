package actor

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	passwordLength = 16
	minLength      = 12

	upperChars   = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	lowerChars   = "abcdefghijkmnpqrstuvwxyz"
	digitChars   = "23456789"
	specialChars = "!@#$%^&*()-_=+"
)

// GeneratePassword returns a random password guaranteed to satisfy
// ValidatePassword: one character from each class, remainder drawn from
// the full alphabet, then shuffled.
func GeneratePassword() (string, error) {
	alphabet := upperChars + lowerChars + digitChars + specialChars

	chars := make([]byte, 0, passwordLength)
	for _, set := range []string{upperChars, lowerChars, digitChars, specialChars} {
		c, err := randomChar(set)
		if err != nil {
			return "", err
		}
		chars = append(chars, c)
	}
	for len(chars) < passwordLength {
		c, err := randomChar(alphabet)
		if err != nil {
			return "", err
		}
		chars = append(chars, c)
	}

	for i := len(chars) - 1; i > 0; i-- {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", fmt.Errorf("shuffle password: %w", err)
		}
		j := n.Int64()
		chars[i], chars[j] = chars[j], chars[i]
	}

	return string(chars), nil
}

func randomChar(set string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, fmt.Errorf("generate password: %w", err)
	}
	return set[n.Int64()], nil
}

// ValidatePassword checks the strength rules a generated password must
// meet before it is submitted to a target site.
func ValidatePassword(password string) error {
	if len(password) < minLength {
		return fmt.Errorf("password must be at least %d characters", minLength)
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, c := range password {
		switch {
		case c >= 'A' && c <= 'Z':
			hasUpper = true
		case c >= 'a' && c <= 'z':
			hasLower = true
		case c >= '0' && c <= '9':
			hasDigit = true
		case strings.ContainsRune("!@#$%^&*()-_=+[]{};:,.<>?", c):
			hasSpecial = true
		}
	}

	switch {
	case !hasUpper:
		return fmt.Errorf("password must contain an uppercase letter")
	case !hasLower:
		return fmt.Errorf("password must contain a lowercase letter")
	case !hasDigit:
		return fmt.Errorf("password must contain a digit")
	case !hasSpecial:
		return fmt.Errorf("password must contain a special character")
	}
	return nil
}
