package providers

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var _ AuthProvider = &JWTAuthProvider{}

// JWTAuthProvider verifies HS256 tokens signed with a shared secret.
// It is the provider for deployments where the finance backend issues
// its own session tokens.
type JWTAuthProvider struct {
	secret []byte
}

func NewJWTAuthProvider(secret string) *JWTAuthProvider {
	return &JWTAuthProvider{
		secret: []byte(secret),
	}
}

// VerifyToken verifies a signed token and extracts the user id from
// its subject claim.
func (p *JWTAuthProvider) VerifyToken(ctx context.Context, idToken string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(idToken, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("error verifying token: %v", err)
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("invalid token claims")
	}

	return &TokenClaims{
		UID: claims.Subject,
	}, nil
}
