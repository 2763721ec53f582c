package services

import (
	"context"
	"errors"

	"qmd/internal/domain"
	"qmd/internal/qmdapi"
	"qmd/internal/session"
	"qmd/internal/validate"
)

var ErrBadCreds = errors.New("invalid email or password")

// AuthService binds a citizen to the browser session ("login" without a
// password, as the portal is operated on the citizen's behalf) and handles the
// admin token.
type AuthService struct {
	API      *qmdapi.Client
	Sessions *session.Manager
}

func NewAuthService(api *qmdapi.Client, sessions *session.Manager) *AuthService {
	return &AuthService{API: api, Sessions: sessions}
}

func (s *AuthService) Citizens(ctx context.Context) ([]domain.Citizen, error) {
	return s.API.ListCitizens(ctx)
}

// Login checks the citizen exists and makes it the session's citizen.
func (s *AuthService) Login(ctx context.Context, sid, citizenID string) (*domain.Citizen, error) {
	c, err := s.API.GetCitizen(ctx, citizenID)
	if err != nil {
		return nil, err
	}
	if err := s.Sessions.BindCitizen(ctx, sid, c.ID.String()); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *AuthService) Logout(ctx context.Context, sid string) error {
	return s.Sessions.Logout(ctx, sid)
}

// CurrentCitizen returns nil without error when no citizen is selected.
func (s *AuthService) CurrentCitizen(ctx context.Context, sc session.Context) (*domain.Citizen, error) {
	if !sc.HasCitizen() {
		return nil, nil
	}
	return s.API.GetCitizen(ctx, sc.CitizenID)
}

// AdminLogin exchanges credentials for a token kept in the session.
func (s *AuthService) AdminLogin(ctx context.Context, sid, email, password string) error {
	email, ok := validate.Email(email)
	if !ok || !validate.Password(password) {
		return ErrBadCreds
	}
	token, err := s.API.AdminLogin(ctx, email, password)
	if errors.Is(err, qmdapi.ErrUnauthorized) {
		return ErrBadCreds
	}
	if err != nil {
		return err
	}
	return s.Sessions.SetAdminToken(ctx, sid, token)
}

func (s *AuthService) AdminLogout(ctx context.Context, sid string) error {
	return s.Sessions.ClearAdminToken(ctx, sid)
}

// AdminAuthorized is the local pre-check; the API still has the last word.
func (s *AuthService) AdminAuthorized(sc session.Context) bool {
	return s.Sessions.AdminTokenUsable(sc.AdminToken)
}
