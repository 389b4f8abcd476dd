package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	authproviders "github.com/ledgerquest/ledgerquest/pkg/auth/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAuthProvider struct {
	uid string
}

func (p *stubAuthProvider) VerifyToken(ctx context.Context, idToken string) (*authproviders.TokenClaims, error) {
	if idToken != "valid-token" {
		return nil, fmt.Errorf("invalid token")
	}
	return &authproviders.TokenClaims{UID: p.uid}, nil
}

func TestAuthMiddleware(t *testing.T) {
	testCases := []struct {
		name       string
		header     string
		wantStatus int
		wantUID    string
	}{
		{
			name:       "missing header",
			header:     "",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "malformed header",
			header:     "NotBearer token",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "invalid token",
			header:     "Bearer bad-token",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "valid token",
			header:     "Bearer valid-token",
			wantStatus: http.StatusOK,
			wantUID:    "user-1",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var gotUID string
			handler := NewAuthMiddleware(&stubAuthProvider{uid: "user-1"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				principal, ok := PrincipalFromContext(r.Context())
				require.True(t, ok)
				gotUID = principal.UserID
				w.WriteHeader(http.StatusOK)
			}))

			r := httptest.NewRequest(http.MethodGet, "/rpg/avatar", nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)

			assert.Equal(t, tc.wantStatus, w.Code)
			assert.Equal(t, tc.wantUID, gotUID)
		})
	}
}
