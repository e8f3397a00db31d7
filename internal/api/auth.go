package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"nailbook/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	permReadBookings  = "read:bookings"
	permWriteBookings = "write:bookings"
	permWriteSchedule = "write:schedule"
	permWriteServices = "write:services"
	permReadStats     = "read:stats"
	permExport        = "export"

	adminSubject = "admin"
)

var (
	errMissingCredentials = errors.New("missing credentials")
	errInvalidToken       = errors.New("invalid token")
	errInvalidAPIKey      = errors.New("invalid api key")
	errWrongPassword      = errors.New("wrong password")
)

type principalKey struct{}

// Principal is the authenticated caller of an admin route.
type Principal struct {
	Name        string
	Permissions []string // empty means all
}

func (p Principal) can(perm string) bool {
	if len(p.Permissions) == 0 {
		return true
	}
	for _, have := range p.Permissions {
		if strings.TrimSpace(have) == perm {
			return true
		}
	}
	return false
}

func principalFrom(ctx context.Context) Principal {
	if p, ok := ctx.Value(principalKey{}).(Principal); ok {
		return p
	}
	return Principal{Name: "unknown"}
}

// AdminAuth issues session tokens and guards admin routes. A caller presents
// either "Authorization: Bearer <jwt>" or a configured API key header.
type AdminAuth struct {
	cfg     config.APIConfig
	clients map[string]config.APIClientKey
	now     func() time.Time
}

func NewAdminAuth(cfg config.APIConfig) *AdminAuth {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}
	return &AdminAuth{cfg: cfg, clients: m, now: time.Now}
}

// Login checks the admin password against the configured bcrypt hash and
// returns a signed token with its expiry.
func (a *AdminAuth) Login(password string) (string, time.Time, error) {
	hash := a.cfg.Session.AdminPasswordHash
	if hash == "" || password == "" {
		return "", time.Time{}, errWrongPassword
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", time.Time{}, errWrongPassword
	}

	now := a.now()
	expires := now.Add(a.cfg.Session.TTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   adminSubject,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	})
	signed, err := token.SignedString([]byte(a.cfg.Session.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

func (a *AdminAuth) parseToken(raw string) (Principal, error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(a.cfg.Session.Secret), nil
	}, jwt.WithTimeFunc(a.now), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return Principal{}, errInvalidToken
	}
	return Principal{Name: claims.Subject}, nil
}

func (a *AdminAuth) authenticate(r *http.Request) (Principal, error) {
	if auth := strings.TrimSpace(r.Header.Get("Authorization")); auth != "" {
		raw, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok {
			return Principal{}, errInvalidToken
		}
		return a.parseToken(strings.TrimSpace(raw))
	}

	apiKey := strings.TrimSpace(r.Header.Get(a.cfg.Auth.HeaderAPIKey))
	if apiKey == "" {
		return Principal{}, errMissingCredentials
	}
	for key, client := range a.clients {
		if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) == 1 {
			return Principal{Name: client.Name, Permissions: client.Permissions}, nil
		}
	}
	return Principal{}, errInvalidAPIKey
}

// Wrap authenticates the caller and stores the principal in the context.
func (a *AdminAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := a.authenticate(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, msgUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
	})
}

// Require checks a permission for API key callers; session tokens carry all.
func Require(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !principalFrom(r.Context()).can(perm) {
				writeError(w, http.StatusForbidden, msgForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
