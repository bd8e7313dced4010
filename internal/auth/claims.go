package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// CustomClaims extends JWT standard claims with Casement-specific fields.
type CustomClaims struct {
	jwt.RegisteredClaims
	TokenType TokenType `json:"typ"`
}

// GenerateToken creates a signed JWT credential.
//
// Expiry enforcement lives in the ledger, not in the signature check, so
// a non-positive TTL produces a token that is expired from the moment it
// is issued rather than being rejected here.
func GenerateToken(ownerID string, tokenType TokenType, secret string, ttl time.Duration) (string, *CustomClaims, error) {
	subject := ownerID
	if subject == "" {
		// Administrative credentials have no owning user.
		subject = "admin"
	}

	now := time.Now()
	claims := &CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		TokenType: tokenType,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", nil, fmt.Errorf("signing token: %w", err)
	}
	return signed, claims, nil
}

// ParseToken checks the signature and structure of a JWT credential and
// returns its claims.
//
// Expiry is deliberately NOT enforced here: validation precedence
// requires revocation to be reported ahead of expiry, so the ledger owns
// both checks. A bad signature, wrong algorithm, or missing token type is
// reported as ErrTokenMalformed.
func ParseToken(tokenString, secret string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenMalformed, err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenMalformed
	}

	if !IsValidTokenType(claims.TokenType) {
		return nil, fmt.Errorf("%w: missing or unknown token type", ErrTokenMalformed)
	}

	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing expiry", ErrTokenMalformed)
	}

	return claims, nil
}
