package utils

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// PairingCost is the bcrypt cost of stored pairing code hashes.
const PairingCost = bcrypt.DefaultCost

var ErrEmptyPairingCode = errors.New("pairing code must not be empty")

// HashSecret produces the PAIRING_CODE_HASH value for a pairing code.
// Surrounding whitespace is not part of the code.
func HashSecret(secret string) (string, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", ErrEmptyPairingCode
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), PairingCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash pairing code: %w", err)
	}
	return string(hashed), nil
}

// CompareSecret checks a submitted pairing code against PAIRING_CODE_HASH.
func CompareSecret(hashedSecret, secret string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedSecret), []byte(strings.TrimSpace(secret)))
}
