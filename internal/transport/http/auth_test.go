package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIdentityResolve(t *testing.T) {
	token, err := IssueToken("k", "p9", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	tests := []struct {
		name   string
		secret string
		setup  func(r *http.Request)
		want   string
		ok     bool
	}{
		{name: "header", setup: func(r *http.Request) { r.Header.Set(ParticipantHeader, "p1") }, want: "p1", ok: true},
		{name: "query fallback", setup: func(r *http.Request) { r.URL.RawQuery = "participantId=p2" }, want: "p2", ok: true},
		{name: "nothing", setup: func(r *http.Request) {}, ok: false},
		{name: "bearer", secret: "k", setup: func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, want: "p9", ok: true},
		{name: "token query", secret: "k", setup: func(r *http.Request) { r.URL.RawQuery = "token=" + token }, want: "p9", ok: true},
		{name: "garbage token", secret: "k", setup: func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, ok: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/v1/attempts/a", nil)
			tc.setup(r)
			got, err := NewIdentity(tc.secret).resolve(r)
			if (err == nil) != tc.ok {
				t.Fatalf("expected ok=%v, got err=%v", tc.ok, err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}
