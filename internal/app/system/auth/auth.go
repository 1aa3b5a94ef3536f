// Package auth turns the bearer token issued by the external identity
// service into a models.Actor on the request context.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dalemusser/whoseturn/internal/domain/models"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// MinSecretLength is the shortest HS256 secret accepted without a warning.
const MinSecretLength = 32

// Claims are the token fields the service reads. The subject is the uid.
type Claims struct {
	Name      string `json:"name,omitempty"`
	Anonymous bool   `json:"anon,omitempty"`
	jwt.RegisteredClaims
}

// ErrNoToken means the request carried no bearer token.
var ErrNoToken = errors.New("no bearer token")

// Verifier validates HS256 tokens signed with a shared secret.
type Verifier struct {
	secret []byte
	issuer string
	log    *zap.Logger
	now    func() time.Time
}

// NewVerifier creates a Verifier. An empty issuer skips the iss check.
func NewVerifier(secret, issuer string, log *zap.Logger) (*Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is empty")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if len(secret) < MinSecretLength {
		log.Warn("jwt secret is short; 32+ chars recommended", zap.Int("length", len(secret)))
	}
	return &Verifier{secret: []byte(secret), issuer: issuer, log: log, now: time.Now}, nil
}

// Issue signs a token for actor. The identity service normally does this;
// it exists for tests and local development.
func (v *Verifier) Issue(actor models.Actor, ttl time.Duration) (string, error) {
	now := v.now()
	claims := &Claims{
		Name:      actor.DisplayName,
		Anonymous: actor.IsAnonymous,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// Parse validates raw and returns the actor it names.
func (v *Verifier) Parse(raw string) (models.Actor, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return models.Actor{}, err
	}
	if !token.Valid {
		return models.Actor{}, jwt.ErrSignatureInvalid
	}
	if claims.Subject == "" {
		return models.Actor{}, fmt.Errorf("token has no subject")
	}
	if strings.ContainsAny(claims.Subject, ".$") {
		// uids become document keys in the membership projections.
		return models.Actor{}, fmt.Errorf("subject contains a reserved character")
	}
	return models.Actor{
		UID:         claims.Subject,
		DisplayName: claims.Name,
		IsAnonymous: claims.Anonymous,
	}, nil
}

type ctxKey string

const actorKey ctxKey = "actor"

// WithActor returns ctx carrying actor.
func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// CurrentActor returns the actor and a "found?" flag.
func CurrentActor(r *http.Request) (models.Actor, bool) {
	a, ok := r.Context().Value(actorKey).(models.Actor)
	return a, ok
}

// LoadActor puts the token's actor into the context when the request carries
// a valid token. Invalid tokens are logged and treated as absent.
func (v *Verifier) LoadActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := bearer(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		actor, err := v.Parse(raw)
		if err != nil {
			v.log.Debug("rejected bearer token", zap.String("path", r.URL.Path), zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// RequireActor answers 401 when LoadActor found no actor.
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentActor(r); ok {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("WWW-Authenticate", `Bearer realm="whoseturn"`)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"unauthorized","kind":"unauthorized"}`))
	})
}

// bearer reads the token from the Authorization header, or from the
// access_token query parameter (browsers cannot set headers on websocket
// upgrades).
func bearer(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, tok, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tok) == "" {
			return "", ErrNoToken
		}
		return strings.TrimSpace(tok), nil
	}
	if tok := r.URL.Query().Get("access_token"); tok != "" {
		return tok, nil
	}
	return "", ErrNoToken
}
