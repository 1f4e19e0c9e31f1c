// Package identity verifies bearer tokens and turns their claims into actors.
// Tokens are HS256 JWTs whose subject is the actor id and whose roles claim
// lists the granted roles.
package identity

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"curaledger/pkg/domain"
	dErrors "curaledger/pkg/domain-errors"
)

// Claims are the access token claims.
type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// Service issues and validates tokens.
type Service struct {
	signingKey []byte
	issuer     string
	audience   string
	now        func() time.Time
}

func NewService(signingKey, issuer, audience string) *Service {
	return &Service{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
		now:        time.Now,
	}
}

// Issue signs a token for actor valid for ttl. Used by operator tooling and tests.
func (s *Service) Issue(actor domain.Actor, ttl time.Duration) (string, error) {
	now := s.now()
	roles := make([]string, 0, len(actor.Roles))
	for _, r := range actor.Roles {
		roles = append(roles, string(r))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(actor.ID),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(s.signingKey)
}

// ValidateToken parses and verifies the signature, expiry, issuer and audience.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// VerifyActor validates the token and returns the actor it names.
func (s *Service) VerifyActor(tokenString string) (domain.Actor, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return domain.Actor{}, err
	}
	id, err := domain.ParseActorID(claims.Subject)
	if err != nil {
		return domain.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token subject")
	}
	actor := domain.Actor{ID: id}
	for _, r := range claims.Roles {
		actor.Roles = append(actor.Roles, domain.Role(r))
	}
	return actor, nil
}
