// ledger/service/auth_service.go
package service

import (
	"context"
	"strings"

	apperrors "github.com/Ftotnem/POINTS-LEDGER/shared/errors"
	"github.com/Ftotnem/POINTS-LEDGER/shared/logger"
)

// AuthService signs principals in and out and turns tokens back into sessions.
type AuthService struct {
	identity IdentityProvider
	sessions SessionRepository
	log      *logger.Logger
}

func NewAuthService(identity IdentityProvider, sessions SessionRepository, log *logger.Logger) *AuthService {
	return &AuthService{
		identity: identity,
		sessions: sessions,
		log:      log.WithField("component", "auth"),
	}
}

// SignIn verifies the credentials with the identity provider and opens a session.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return Session{}, apperrors.NewValidationError("credentials", "email and password are required")
	}

	principal, err := s.identity.SignIn(ctx, email, password)
	if err != nil {
		return Session{}, err
	}

	token, err := s.sessions.Create(ctx, principal.SubjectID, principal.Email)
	if err != nil {
		return Session{}, err
	}
	s.log.WithContext(ctx).WithField("subject_id", principal.SubjectID).Info("Signed in")

	return Session{Token: token, SubjectID: principal.SubjectID, Email: principal.Email}, nil
}

// Authenticate resolves token to its session.
func (s *AuthService) Authenticate(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return Session{}, apperrors.ErrMissingSession
	}
	rec, err := s.sessions.Resolve(ctx, token)
	if apperrors.IsNotFound(err) {
		return Session{}, apperrors.NewAuthenticationError("INVALID_SESSION", "session expired or invalid")
	}
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, SubjectID: rec.SubjectID, Email: rec.Email}, nil
}

// SignOut revokes the session.
func (s *AuthService) SignOut(ctx context.Context, sess Session) error {
	if sess.Token == "" {
		return apperrors.ErrMissingSession
	}
	return s.sessions.Delete(ctx, sess.Token)
}
