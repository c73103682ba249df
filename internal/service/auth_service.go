package service

import (
	"context"
	"time"

	"pieat-payments/config"
	"pieat-payments/internal/core/ports"
	"pieat-payments/pkg/apperror"

	"github.com/rs/zerolog"
)

// AdminAuthServiceImpl implements ports.AdminAuthService against the single
// configured dashboard credential.
type AdminAuthServiceImpl struct {
	admin    config.AdminConfig
	hashSvc  ports.HashService
	tokenSvc ports.TokenService
	log      zerolog.Logger
}

// NewAdminAuthService creates a new AdminAuthServiceImpl.
func NewAdminAuthService(
	admin config.AdminConfig,
	hashSvc ports.HashService,
	tokenSvc ports.TokenService,
	log zerolog.Logger,
) *AdminAuthServiceImpl {
	return &AdminAuthServiceImpl{
		admin:    admin,
		hashSvc:  hashSvc,
		tokenSvc: tokenSvc,
		log:      log,
	}
}

// Login verifies the admin credential and issues a session token.
func (s *AdminAuthServiceImpl) Login(ctx context.Context, username, password string) (string, time.Time, error) {
	if s.admin.PasswordHash == "" {
		s.log.Error().Msg("admin password hash not configured, dashboard login disabled")
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	// Verify runs even on a username mismatch to keep timing uniform.
	match, err := s.hashSvc.Verify(password, s.admin.PasswordHash)
	if err != nil {
		s.log.Error().Err(err).Msg("password hash verification failed")
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}
	if username != s.admin.Username || !match {
		s.log.Warn().Str("username", username).Msg("failed admin login attempt")
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	token, expiresAt, err := s.tokenSvc.Generate(username)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(err)
	}

	s.log.Info().Str("username", username).Msg("admin logged in")
	return token, expiresAt, nil
}
