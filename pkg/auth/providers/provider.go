package providers

import "context"

// AuthProvider verifies bearer tokens issued by the authentication
// collaborator. Session issuance itself lives outside this service.
type AuthProvider interface {
	VerifyToken(ctx context.Context, idToken string) (*TokenClaims, error)
}

type TokenClaims struct {
	UID string `json:"uid"`
}
