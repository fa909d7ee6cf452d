package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domainerrors "petitionhub/contexts/civic-engagement/petition-service/domain/errors"
	"petitionhub/contexts/civic-engagement/petition-service/ports"

	"github.com/golang-jwt/jwt/v5"
)

const adminRole = "admin"

// Claims is the admin session token payload. Either the admin flag or an
// "admin" role grants access.
type Claims struct {
	Admin bool     `json:"admin,omitempty"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256 session tokens issued by the admin login flow.
type JWTVerifier struct {
	key    []byte
	issuer string
}

var _ ports.SessionVerifier = (*JWTVerifier)(nil)

func NewJWTVerifier(signingKey string, issuer string) (*JWTVerifier, error) {
	if strings.TrimSpace(signingKey) == "" {
		return nil, errors.New("session signing key is required")
	}
	return &JWTVerifier{key: []byte(signingKey), issuer: strings.TrimSpace(issuer)}, nil
}

func (v *JWTVerifier) VerifySession(_ context.Context, token string) (ports.Session, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		options = append(options, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.key, nil
	}, options...)
	if err != nil {
		return ports.Session{}, fmt.Errorf("%w: %v", domainerrors.ErrUnauthenticated, err)
	}
	if !parsed.Valid {
		return ports.Session{}, domainerrors.ErrUnauthenticated
	}

	isAdmin := claims.Admin
	for _, role := range claims.Roles {
		if strings.EqualFold(strings.TrimSpace(role), adminRole) {
			isAdmin = true
		}
	}
	return ports.Session{Subject: claims.Subject, IsAdmin: isAdmin}, nil
}

// Issue signs a session token. Used by operator tooling and tests.
func (v *JWTVerifier) Issue(subject string, admin bool, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		Admin: admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.key)
}
