package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/beat-the-guardian/http/api"
	"github.com/golang-jwt/jwt"
)

func generateAccessToken(claims authJWTClaims) (string, error) {
	t := jwt.New(jwt.SigningMethodHS256)
	t.Claims = claims
	return t.SignedString([]byte(getSecretKey()))
}

// handleIssueSudoToken mints an admin token for a caller who presented the
// shared secret.
func handleIssueSudoToken(l *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email, ok := r.Context().Value(ctxKeyEmail).(string)
		if !ok {
			writeInternalError(l, w, fmt.Errorf("missing context key for auth email"))
			return
		}
		c := authJWTClaims{
			StandardClaims: jwt.StandardClaims{
				ExpiresAt: time.Now().Add(2 * 7 * 24 * time.Hour).Unix(), // 2 weeks
			},
			Email:  email,
			Status: int(UserStatusSudo),
		}
		token, err := generateAccessToken(c)
		if err != nil {
			writeInternalError(l, w, err)
			return
		}
		writeJSONResponse(w, api.TokenResponse{AccessToken: token, TokenType: "bearer"}, http.StatusOK)
	}
}
