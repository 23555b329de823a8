package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/quillsociety/auditions/internal/services"
)

type authCtxKey int

const authKey authCtxKey = 7

const devSecret = "auditions-dev-secret"

type Claims struct {
	UID  string `json:"uid"`
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Auth signs and verifies HS256 bearer tokens.
type Auth struct {
	secret []byte
	now    func() time.Time
}

// NewAuth uses secret for signing. An empty secret falls back to a fixed
// development value; Insecure reports that case.
func NewAuth(secret string) *Auth {
	if secret == "" {
		secret = devSecret
	}
	return &Auth{secret: []byte(secret), now: time.Now}
}

func (a *Auth) Insecure() bool { return string(a.secret) == devSecret }

// SignToken matches services.TokenSigner.
func (a *Auth) SignToken(uid, name string, role services.Role, ttl time.Duration) (string, error) {
	now := a.now()
	claims := Claims{
		UID:  uid,
		Name: name,
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *Auth) parseToken(tok string) (*Claims, error) {
	t, err := jwt.ParseWithClaims(tok, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, err
	}
	if c, ok := t.Claims.(*Claims); ok && t.Valid {
		return c, nil
	}
	return nil, errors.New("invalid token")
}

// Attach auth claims to context if Authorization header present and valid.
func (a *Auth) WithAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		if strings.HasPrefix(h, "Bearer ") {
			tok := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
			if c, err := a.parseToken(tok); err == nil {
				ctx := context.WithValue(r.Context(), authKey, c)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// CallerFromContext returns the authenticated caller. Tokens carrying an
// unknown role yield a caller without privileges.
func CallerFromContext(ctx context.Context) (services.Caller, bool) {
	c, ok := ctx.Value(authKey).(*Claims)
	if !ok || c.UID == "" {
		return services.Caller{}, false
	}
	role, _ := services.ParseRole(c.Role)
	return services.Caller{UserID: c.UID, Name: c.Name, Role: role}, true
}
