package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/citizen-registry/internal/model"
	"github.com/jwalitptl/citizen-registry/internal/repository"
	"github.com/jwalitptl/citizen-registry/internal/service"
	"github.com/jwalitptl/citizen-registry/pkg/auth"
	apperrors "github.com/jwalitptl/citizen-registry/pkg/errors"
	"github.com/jwalitptl/citizen-registry/pkg/metrics"
	"github.com/jwalitptl/citizen-registry/pkg/security"
)

const (
	DefaultMaxFailedAttempts = 5
	DefaultLockoutDuration   = 15 * time.Minute
)

const (
	kindCitizen     = "citizen"
	kindStaff       = "staff"
	kindAdmin       = "admin"
	kindInstitution = "institution"
)

type Config struct {
	RefreshExpiry     time.Duration
	MaxFailedAttempts int
	LockoutDuration   time.Duration
	// AdminEmail and AdminPasswordHash define the bootstrap operator. An empty
	// hash disables operator login.
	AdminEmail        string
	AdminPasswordHash string
}

type Servicer interface {
	LoginCitizen(ctx context.Context, email, password string) (*model.Citizen, *model.TokenPair, error)
	LoginStaff(ctx context.Context, email, password string) (*model.Identity, *model.TokenPair, error)
	LoginInstitution(ctx context.Context, apiKey string) (*model.Identity, *model.TokenPair, error)
	IssueTokens(ctx context.Context, identity *model.Identity) (*model.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*model.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
}

type Service struct {
	citizens     repository.CitizenRepository
	staff        repository.StaffRepository
	institutions repository.InstitutionRepository
	tokens       repository.RefreshTokenStore
	jwt          auth.JWTService
	hasher       security.PasswordHasher
	config       Config
	logger       zerolog.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
}

func NewService(
	citizens repository.CitizenRepository,
	staff repository.StaffRepository,
	institutions repository.InstitutionRepository,
	tokens repository.RefreshTokenStore,
	jwtSvc auth.JWTService,
	hasher security.PasswordHasher,
	config Config,
	logger zerolog.Logger,
	m *metrics.Metrics,
) *Service {
	if config.MaxFailedAttempts <= 0 {
		config.MaxFailedAttempts = DefaultMaxFailedAttempts
	}
	if config.LockoutDuration <= 0 {
		config.LockoutDuration = DefaultLockoutDuration
	}
	return &Service{
		citizens:     citizens,
		staff:        staff,
		institutions: institutions,
		tokens:       tokens,
		jwt:          jwtSvc,
		hasher:       hasher,
		config:       config,
		logger:       logger,
		metrics:      m,
		now:          time.Now,
	}
}

// LoginCitizen returns ErrInvalidCredentials for unknown emails and wrong
// passwords alike, after the same amount of hashing work.
func (s *Service) LoginCitizen(ctx context.Context, email, password string) (*model.Citizen, *model.TokenPair, error) {
	citizen, err := s.citizens.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		s.hasher.CompareDummy(password)
		return nil, nil, s.reject(kindCitizen)
	}
	if err != nil {
		return nil, nil, apperrors.NewInternal(err)
	}

	if err := s.hasher.Compare(citizen.PasswordHash, password); err != nil {
		return nil, nil, s.reject(kindCitizen)
	}

	tokens, err := s.IssueTokens(ctx, CitizenIdentity(citizen))
	if err != nil {
		return nil, nil, err
	}
	s.accept(kindCitizen)
	return citizen, tokens, nil
}

// LoginStaff authenticates staff members and the bootstrap operator. Repeated
// failures lock the staff account for the lockout duration.
func (s *Service) LoginStaff(ctx context.Context, email, password string) (*model.Identity, *model.TokenPair, error) {
	if s.isOperator(email) {
		return s.loginOperator(ctx, email, password)
	}

	member, err := s.staff.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		s.hasher.CompareDummy(password)
		return nil, nil, s.reject(kindStaff)
	}
	if err != nil {
		return nil, nil, apperrors.NewInternal(err)
	}

	now := s.now().UTC()
	if member.Locked(now) {
		s.hasher.CompareDummy(password)
		s.logger.Warn().Str("staff_id", member.ID.String()).Msg("login refused: account locked")
		return nil, nil, s.reject(kindStaff)
	}

	if member.PasswordHash == "" {
		s.hasher.CompareDummy(password)
		return nil, nil, s.reject(kindStaff)
	}

	if err := s.hasher.Compare(member.PasswordHash, password); err != nil {
		until := now.Add(s.config.LockoutDuration)
		locked, err := s.staff.RecordLoginFailure(ctx, member.ID, s.config.MaxFailedAttempts, until)
		if err != nil {
			return nil, nil, apperrors.NewInternal(fmt.Errorf("failed to record login failure: %w", err))
		}
		if locked {
			s.logger.Warn().
				Str("staff_id", member.ID.String()).
				Time("locked_until", until).
				Msg("staff account locked after repeated failures")
		}
		return nil, nil, s.reject(kindStaff)
	}

	if err := s.staff.RecordLoginSuccess(ctx, member.ID, now); err != nil {
		return nil, nil, apperrors.NewInternal(fmt.Errorf("failed to update login timestamp: %w", err))
	}
	member.FailedAttempts = 0
	member.LockedUntil = nil
	member.LastLogin = &now

	identity := StaffIdentity(member)
	tokens, err := s.IssueTokens(ctx, identity)
	if err != nil {
		return nil, nil, err
	}
	s.accept(kindStaff)
	return identity, tokens, nil
}

// LoginInstitution exchanges an active API key for an institution token
// carrying the key's permissions.
func (s *Service) LoginInstitution(ctx context.Context, apiKey string) (*model.Identity, *model.TokenPair, error) {
	key, err := s.institutions.GetAPIKeyByDigest(ctx, security.Digest(apiKey))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, s.reject(kindInstitution)
	}
	if err != nil {
		return nil, nil, apperrors.NewInternal(err)
	}
	if !key.Active {
		return nil, nil, s.reject(kindInstitution)
	}

	now := s.now().UTC()
	key.LastUsed = &now
	if err := s.institutions.TouchAPIKey(ctx, key.ID, now); err != nil {
		s.logger.Error().Err(err).Str("key_id", key.ID.String()).Msg("failed to stamp api key usage")
	}

	identity := InstitutionIdentity(key)
	tokens, err := s.IssueTokens(ctx, identity)
	if err != nil {
		return nil, nil, err
	}
	s.accept(kindInstitution)
	return identity, tokens, nil
}

// IssueTokens signs an access token and stores a fresh refresh session.
func (s *Service) IssueTokens(ctx context.Context, identity *model.Identity) (*model.TokenPair, error) {
	access, expiresAt, err := s.jwt.Issue(identity)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}

	refresh, digest, err := security.GenerateRefreshToken()
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}

	now := s.now().UTC()
	session := &model.RefreshSession{
		Identity:  *identity,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.config.RefreshExpiry),
	}
	if err := s.tokens.Save(ctx, digest, session, s.config.RefreshExpiry); err != nil {
		return nil, apperrors.NewInternal(fmt.Errorf("failed to store refresh token: %w", err))
	}

	return &model.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
	}, nil
}

// Refresh rotates a refresh token. The presented token is consumed, so a
// replay fails. The new pair carries the principal's current standing, not
// the one recorded at login.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*model.TokenPair, error) {
	session, err := s.tokens.Consume(ctx, security.Digest(refreshToken))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewUnauthenticated("invalid refresh token", err)
	}
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	if !s.now().Before(session.ExpiresAt) {
		return nil, apperrors.NewUnauthenticated("invalid refresh token", errors.New("refresh token expired"))
	}

	identity, err := s.current(ctx, &session.Identity)
	if err != nil {
		return nil, err
	}
	return s.IssueTokens(ctx, identity)
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if err := s.tokens.Revoke(ctx, security.Digest(refreshToken)); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewInternal(err)
	}
	return nil
}

var errSessionRevoked = errors.New("principal no longer entitled to a session")

// current rebuilds the identity of a refresh session from stored state. Removed
// principals, locked staff and deactivated API keys lose the session.
func (s *Service) current(ctx context.Context, identity *model.Identity) (*model.Identity, error) {
	switch identity.Role {
	case model.RoleCitizen:
		citizen, err := s.citizens.Get(ctx, identity.Subject)
		if err != nil {
			return nil, s.sessionError(err)
		}
		return CitizenIdentity(citizen), nil

	case model.RoleStaff:
		member, err := s.staff.Get(ctx, identity.Subject)
		if err != nil {
			return nil, s.sessionError(err)
		}
		if member.Locked(s.now().UTC()) {
			return nil, s.sessionError(errSessionRevoked)
		}
		return StaffIdentity(member), nil

	case model.RoleInstitution:
		raw, _ := identity.Extra["keyId"].(string)
		keyID, err := uuid.Parse(raw)
		if err != nil {
			return nil, s.sessionError(errSessionRevoked)
		}
		key, err := s.institutions.GetAPIKey(ctx, keyID)
		if err != nil {
			return nil, s.sessionError(err)
		}
		if !key.Active || key.InstitutionID != identity.Subject {
			return nil, s.sessionError(errSessionRevoked)
		}
		if _, err := s.institutions.Get(ctx, key.InstitutionID); err != nil {
			return nil, s.sessionError(err)
		}
		return InstitutionIdentity(key), nil

	case model.RoleAdmin:
		email, _ := identity.Extra["email"].(string)
		if !s.isOperator(email) {
			return nil, s.sessionError(errSessionRevoked)
		}
		return OperatorIdentity(email), nil
	}
	return nil, s.sessionError(errSessionRevoked)
}

func (s *Service) sessionError(err error) error {
	if errors.Is(err, repository.ErrNotFound) || errors.Is(err, errSessionRevoked) {
		return apperrors.NewUnauthenticated("invalid refresh token", err)
	}
	return service.MapError(err, "session", "id")
}

func (s *Service) isOperator(email string) bool {
	return s.config.AdminPasswordHash != "" && s.config.AdminEmail != "" &&
		strings.EqualFold(email, s.config.AdminEmail)
}

func (s *Service) loginOperator(ctx context.Context, email, password string) (*model.Identity, *model.TokenPair, error) {
	if err := s.hasher.Compare(s.config.AdminPasswordHash, password); err != nil {
		s.logger.Warn().Msg("operator login failed")
		return nil, nil, s.reject(kindAdmin)
	}

	identity := OperatorIdentity(email)
	tokens, err := s.IssueTokens(ctx, identity)
	if err != nil {
		return nil, nil, err
	}
	s.accept(kindAdmin)
	return identity, tokens, nil
}

func (s *Service) reject(kind string) error {
	if s.metrics != nil {
		s.metrics.LoginAttempts.WithLabelValues(kind, "failure").Inc()
	}
	return apperrors.ErrInvalidCredentials
}

func (s *Service) accept(kind string) {
	if s.metrics != nil {
		s.metrics.LoginAttempts.WithLabelValues(kind, "success").Inc()
	}
}

func CitizenIdentity(c *model.Citizen) *model.Identity {
	return &model.Identity{
		Subject: c.ID,
		Role:    model.RoleCitizen,
		Extra:   map[string]interface{}{"email": c.Email},
	}
}

// StaffIdentity maps the staff permission flags onto token permissions.
func StaffIdentity(m *model.Staff) *model.Identity {
	institutionID := m.InstitutionID
	return &model.Identity{
		Subject:       m.ID,
		Role:          model.RoleStaff,
		Permissions:   m.Permissions.Grants(),
		InstitutionID: &institutionID,
		Extra: map[string]interface{}{
			"email":     m.Email,
			"staffRole": string(m.Role),
		},
	}
}

func InstitutionIdentity(key *model.APIKey) *model.Identity {
	institutionID := key.InstitutionID
	perms := make([]model.Permission, 0, len(key.Permissions))
	for _, p := range key.Permissions {
		perms = append(perms, model.Permission(p))
	}
	return &model.Identity{
		Subject:       key.InstitutionID,
		Role:          model.RoleInstitution,
		Permissions:   perms,
		InstitutionID: &institutionID,
		Extra:         map[string]interface{}{"keyId": key.ID.String()},
	}
}

// OperatorIdentity derives a stable subject from the operator email.
func OperatorIdentity(email string) *model.Identity {
	return &model.Identity{
		Subject: uuid.NewSHA1(uuid.NameSpaceURL, []byte("operator:"+strings.ToLower(email))),
		Role:    model.RoleAdmin,
		Extra:   map[string]interface{}{"email": email},
	}
}
