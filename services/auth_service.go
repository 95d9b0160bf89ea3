package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"cirrusdrive/models"
	"cirrusdrive/utils"

	"golang.org/x/crypto/bcrypt"
)

// AuthService is the identity layer: account creation, credential checks
// and session token issuance.
type AuthService struct {
	users         UserStore
	jwtSecret     string
	jwtExpiration int // hours
	freeLimit     int64
}

func NewAuthService(users UserStore, jwtSecret string, jwtExpirationHours int, freeLimit int64) *AuthService {
	return &AuthService{
		users:         users,
		jwtSecret:     jwtSecret,
		jwtExpiration: jwtExpirationHours,
		freeLimit:     freeLimit,
	}
}

// SignUp creates an account with the default free storage limit and the
// user role. The email must be unused.
func (s *AuthService) SignUp(ctx context.Context, email, password, displayName string) (*models.User, string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Email:        email,
		Name:         displayName,
		PasswordHash: string(hash),
		Role:         models.RoleUser,
		UsedStorage:  0,
		FreeLimit:    s.freeLimit,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, "", err
	}
	log.Printf("[AuthService] created account %s (%s)", user.ID.Hex(), user.Email)

	token, err := utils.GenerateJWTTokenWithSecret(user, s.jwtSecret, s.jwtExpiration)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}
	return user, token, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := utils.GenerateJWTTokenWithSecret(user, s.jwtSecret, s.jwtExpiration)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}
	return user, token, nil
}

// CurrentUser resolves the session to the stored profile. Fails with
// ErrNotFound when the account was deleted after the token was issued.
func (s *AuthService) CurrentUser(ctx context.Context, sess models.Session) (*models.User, error) {
	return s.users.GetByID(ctx, sess.UserID)
}
