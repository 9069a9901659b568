package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/wheaney/social-freedom-sub000/internal/core/domain"
)

// AccountClaims : le Subject est l'userId du compte appelant
type AccountClaims struct {
	jwt.RegisteredClaims
}

// JWTProvider signe et vérifie les jetons fédérés avec un secret partagé (HS256).
type JWTProvider struct {
	secret []byte
	expiry time.Duration
	issuer string
}

func NewJWTProvider(secret string, expiry time.Duration, issuer string) (*JWTProvider, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &JWTProvider{secret: []byte(secret), expiry: expiry, issuer: issuer}, nil
}

// Issue crée un jeton court au nom de userID
func (j *JWTProvider) Issue(userID string) (string, error) {
	now := time.Now()
	claims := AccountClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(j.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    j.issuer,
			Subject:   userID,
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}

// Verify vérifie la signature et retourne l'identité (Subject)
func (j *JWTProvider) Verify(tokenString string) (*domain.AuthenticatedIdentity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccountClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Sécurité critique : refuser tout autre algo (dont "none")
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(*AccountClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%w: invalid token claims", domain.ErrUnauthorized)
	}
	return &domain.AuthenticatedIdentity{UserID: claims.Subject, AuthToken: tokenString}, nil
}
