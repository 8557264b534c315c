package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lalith-99/orgcast/internal/models"
)

const issuer = "orgcast"

// Claims is the payload inside every session token.
//
// Role is informational only. The middleware reloads the principal on every
// request, so a demoted or deactivated principal loses access immediately.
//
// Why embed jwt.RegisteredClaims?
//   - Subject, ExpiresAt, IssuedAt and Issuer come for free and are checked
//     by the parser.
//   - Standard tooling (the jwt.io debugger, gateways) reads those fields.
type Claims struct {
	PrincipalID uuid.UUID   `json:"principal_id"`
	Role        models.Role `json:"role"`
	Email       string      `json:"email"`
	jwt.RegisteredClaims
}

// GenerateToken signs an HS256 token for p that expires after ttl.
//
// Why HS256?
//   - One service both issues and verifies tokens, so a shared secret is
//     enough and there is no key pair to distribute.
//   - If another service ever needs to verify without issuing, switch to an
//     asymmetric method so only this one holds the signing key.
func GenerateToken(p models.Principal, secret string, ttl time.Duration) (string, error) {
	now := time.Now()

	claims := Claims{
		PrincipalID: p.ID,
		Role:        p.Role,
		Email:       p.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// ParseToken validates signature, expiry, issuer and signing method, and
// returns the claims.
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{},
		func(token *jwt.Token) (any, error) {
			// Reject "none" and asymmetric algorithms before verifying.
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(secret), nil
		},
		jwt.WithIssuer(issuer),
	)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.PrincipalID == uuid.Nil {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}
