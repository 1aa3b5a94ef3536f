package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/whoseturn/internal/domain/models"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const testSecret = "test-secret-must-be-32-chars-long!!"

func newVerifier(t *testing.T, issuer string) *Verifier {
	t.Helper()
	v, err := NewVerifier(testSecret, issuer, zap.NewNop())
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	return v
}

func TestNewVerifier_EmptySecret(t *testing.T) {
	if _, err := NewVerifier("", "", nil); err == nil {
		t.Error("expected error for empty secret")
	}
}

func TestIssueAndParse(t *testing.T) {
	v := newVerifier(t, "identity")
	want := models.Actor{UID: "uid-alice", DisplayName: "Alice", IsAnonymous: true}

	tok, err := v.Issue(want, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	got, err := v.Parse(tok)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got != want {
		t.Errorf("actor: got %+v, want %+v", got, want)
	}
}

func TestParse_Rejects(t *testing.T) {
	v := newVerifier(t, "identity")
	alice := models.Actor{UID: "uid-alice", DisplayName: "Alice"}

	other := newVerifier(t, "elsewhere")
	wrongIssuer, _ := other.Issue(alice, time.Hour)

	expired, _ := func() (string, error) {
		old := newVerifier(t, "identity")
		old.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		return old.Issue(alice, time.Hour)
	}()

	wrongKey, _ := func() (string, error) {
		k, _ := NewVerifier(strings.Repeat("x", 40), "identity", nil)
		return k.Issue(alice, time.Hour)
	}()

	noSubject, _ := v.Issue(models.Actor{DisplayName: "Nobody"}, time.Hour)
	dotted, _ := v.Issue(models.Actor{UID: "a.b"}, time.Hour)

	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "uid-alice", Issuer: "identity"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name string
		tok  string
	}{
		{"garbage", "not-a-token"},
		{"wrong issuer", wrongIssuer},
		{"expired", expired},
		{"wrong key", wrongKey},
		{"no subject", noSubject},
		{"reserved character", dotted},
		{"alg none", none},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.Parse(tt.tok); err == nil {
				t.Error("expected Parse to fail")
			}
		})
	}
}

func TestRequireActor(t *testing.T) {
	v := newVerifier(t, "")
	tok, err := v.Issue(models.Actor{UID: "uid-bob", DisplayName: "Bob"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	var seen models.Actor
	h := v.LoadActor(RequireActor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = CurrentActor(r)
		w.WriteHeader(http.StatusOK)
	})))

	tests := []struct {
		name       string
		header     string
		query      string
		wantStatus int
	}{
		{"no token", "", "", http.StatusUnauthorized},
		{"header", "Bearer " + tok, "", http.StatusOK},
		{"lowercase scheme", "bearer " + tok, "", http.StatusOK},
		{"query parameter", "", "?access_token=" + tok, http.StatusOK},
		{"basic auth", "Basic dXNlcjpwYXNz", "", http.StatusUnauthorized},
		{"bad token", "Bearer nope", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = models.Actor{}
			req := httptest.NewRequest(http.MethodGet, "/api/groups"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status: got %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && seen.UID != "uid-bob" {
				t.Errorf("actor uid: got %q, want %q", seen.UID, "uid-bob")
			}
			if tt.wantStatus == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate header")
			}
		})
	}
}
