package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	ClientID string `json:"client_id"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies control tokens with an HS256 secret.
type TokenIssuer struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, expiry time.Duration) *TokenIssuer {
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), expiry: expiry, now: time.Now}
}

// GenerateToken creates a token for a paired client
func (ti *TokenIssuer) GenerateToken(clientID string) (string, time.Time, error) {
	now := ti.now()
	expirationTime := now.Add(ti.expiry)

	claims := &Claims{
		ClientID: clientID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   clientID,
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ti.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expirationTime, nil
}

// ValidateToken checks the signature and expiry of a token
func (ti *TokenIssuer) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return ti.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// ParseToken returns the client id carried by a token
func (ti *TokenIssuer) ParseToken(tokenString string) (string, error) {
	claims, err := ti.ValidateToken(tokenString)
	if err != nil {
		return "", err
	}
	return claims.ClientID, nil
}
