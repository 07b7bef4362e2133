package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jwalitptl/citizen-registry/internal/model"
)

var (
	// ErrInvalidToken covers malformed, expired and badly signed tokens.
	ErrInvalidToken    = errors.New("invalid token")
	ErrTokenGeneration = errors.New("failed to generate token")
)

// Claims is the access token payload.
type Claims struct {
	Role        model.Role             `json:"role"`
	Permissions []model.Permission     `json:"permissions,omitempty"`
	Institution string                 `json:"institution,omitempty"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
	jwt.RegisteredClaims
}

type Config struct {
	Secret string
	Issuer string
	Expiry time.Duration
}

// JWTService issues and verifies HS256 access tokens.
type JWTService interface {
	Issue(identity *model.Identity) (token string, expiresAt time.Time, err error)
	Verify(token string) (*model.Identity, error)
}

type jwtService struct {
	secret []byte
	issuer string
	expiry time.Duration
	now    func() time.Time
}

func NewJWTService(cfg Config) JWTService {
	return newJWTService(cfg, time.Now)
}

func newJWTService(cfg Config, now func() time.Time) *jwtService {
	return &jwtService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		expiry: cfg.Expiry,
		now:    now,
	}
}

func (s *jwtService) Issue(identity *model.Identity) (string, time.Time, error) {
	now := s.now().UTC()
	expiresAt := now.Add(s.expiry)

	claims := Claims{
		Role:        identity.Role,
		Permissions: identity.Permissions,
		Extra:       identity.Extra,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.Subject.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	if identity.InstitutionID != nil {
		claims.Institution = identity.InstitutionID.String()
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", ErrTokenGeneration, err)
	}
	return signed, expiresAt, nil
}

// Verify returns ErrInvalidToken wrapping the underlying reason.
func (s *jwtService) Verify(token string) (*model.Identity, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	subject, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}

	identity := &model.Identity{
		Subject:     subject,
		Role:        claims.Role,
		Permissions: claims.Permissions,
		Extra:       claims.Extra,
	}
	if claims.Institution != "" {
		institutionID, err := uuid.Parse(claims.Institution)
		if err != nil {
			return nil, fmt.Errorf("%w: bad institution", ErrInvalidToken)
		}
		identity.InstitutionID = &institutionID
	}
	return identity, nil
}
