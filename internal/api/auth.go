package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// AuthContext carries the caller's identity extracted from the bearer
// token. IsAdmin reflects which issuer pool minted the token.
type AuthContext struct {
	UserID  string
	IsAdmin bool
}

type authContextKey struct{}

// AuthConfig controls token verification.
type AuthConfig struct {
	SigningSecret string
	AdminPool     string
	UserPool      string
}

// AuthFromRequest returns the AuthContext the middleware attached.
func AuthFromRequest(r *http.Request) (AuthContext, bool) {
	auth, ok := r.Context().Value(authContextKey{}).(AuthContext)
	return auth, ok
}

// AuthMiddleware verifies the bearer token and attaches an AuthContext.
// Tokens from a pool other than the configured user/admin pools are
// rejected.
func AuthMiddleware(cfg AuthConfig, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth, err := authenticate(cfg, r)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), authContextKey{}, auth)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func authenticate(cfg AuthConfig, r *http.Request) (AuthContext, error) {
	header := r.Header.Get("Authorization")
	tokenString, found := strings.CutPrefix(header, "Bearer ")
	if !found || tokenString == "" {
		return AuthContext{}, fmt.Errorf("missing bearer token")
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(cfg.SigningSecret), nil
	})
	if err != nil {
		return AuthContext{}, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return AuthContext{}, fmt.Errorf("unexpected claims type")
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return AuthContext{}, fmt.Errorf("token has no subject")
	}
	issuer, err := claims.GetIssuer()
	if err != nil {
		return AuthContext{}, fmt.Errorf("token has no issuer")
	}

	// The pool is the last path segment of the issuer.
	pool := issuer[strings.LastIndex(issuer, "/")+1:]
	switch pool {
	case cfg.AdminPool:
		return AuthContext{UserID: subject, IsAdmin: true}, nil
	case cfg.UserPool:
		return AuthContext{UserID: subject, IsAdmin: false}, nil
	}
	return AuthContext{}, fmt.Errorf("issuer pool %q not trusted", pool)
}
