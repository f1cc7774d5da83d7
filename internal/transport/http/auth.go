package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ParticipantHeader carries the participant id when no signing secret is configured.
const ParticipantHeader = "X-Participant-ID"

type participantKey struct{}

// Identity resolves the calling participant, from an HS256 bearer token when a secret is set
// and from ParticipantHeader otherwise. Websocket clients may pass ?token= or ?participantId=.
type Identity struct {
	secret []byte
}

func NewIdentity(secret string) *Identity {
	return &Identity{secret: []byte(secret)}
}

// IssueToken signs a participant token; used by the token CLI command and tests.
func IssueToken(secret, participantID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   participantID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func (i *Identity) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		participantID, err := i.resolve(r)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: err.Error(), Code: "unauthorized"})
			return
		}
		ctx := context.WithValue(r.Context(), participantKey{}, participantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (i *Identity) resolve(r *http.Request) (string, error) {
	if len(i.secret) == 0 {
		id := r.Header.Get(ParticipantHeader)
		if id == "" {
			id = r.URL.Query().Get("participantId")
		}
		if id == "" {
			return "", errors.New("missing participant id")
		}
		return id, nil
	}

	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if raw == "" || raw == r.Header.Get("Authorization") {
		raw = r.URL.Query().Get("token")
	}
	if raw == "" {
		return "", errors.New("missing bearer token")
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", errors.New("invalid token")
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// ParticipantID returns the participant resolved by Identity.Middleware.
func ParticipantID(ctx context.Context) string {
	id, _ := ctx.Value(participantKey{}).(string)
	return id
}
