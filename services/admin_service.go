package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"cirrusdrive/models"

	"golang.org/x/crypto/bcrypt"
)

// AdminService handles cross-user lifecycle operations. The caller's role
// is re-read from the user store on every call rather than trusted from
// token claims.
type AdminService struct {
	users       UserStore
	records     RecordStore
	fileService *FileService
	bus         *EventBus
	freeLimit   int64
}

func NewAdminService(users UserStore, records RecordStore, fileService *FileService, bus *EventBus, freeLimit int64) *AdminService {
	return &AdminService{
		users:       users,
		records:     records,
		fileService: fileService,
		bus:         bus,
		freeLimit:   freeLimit,
	}
}

// requireAdmin verifies against the store that the caller currently holds
// the admin role.
func (s *AdminService) requireAdmin(ctx context.Context, sess models.Session) error {
	caller, err := s.users.GetByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrUnauthorized
		}
		return err
	}
	if caller.Role != models.RoleAdmin {
		return ErrUnauthorized
	}
	return nil
}

// CreateUser provisions an account on a user's behalf. New accounts get
// the user role and the default free limit, same as self-service signup.
func (s *AdminService) CreateUser(ctx context.Context, sess models.Session, email, password, displayName string) (*models.User, error) {
	if err := s.requireAdmin(ctx, sess); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
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
		return nil, err
	}

	log.Printf("[AdminService] created account %s (%s) on behalf of %s", user.ID.Hex(), user.Email, sess.UserID)
	s.bus.Publish(Event{Topic: TopicUsers})
	return user, nil
}

func (s *AdminService) ListUsers(ctx context.Context, sess models.Session) ([]models.User, error) {
	if err := s.requireAdmin(ctx, sess); err != nil {
		return nil, err
	}
	return s.users.List(ctx)
}

// DeleteUser removes all of a user's files and then the user record.
// Idempotent and resumable: if a previous invocation was interrupted,
// ListByOwner reflects the remaining work and re-invoking finishes it.
// Files already gone are skipped without error.
//
// Limitation: tokens already issued to the deleted user cannot be
// revoked. They stay structurally valid until expiry and are rejected
// only because the user lookup behind each request fails.
func (s *AdminService) DeleteUser(ctx context.Context, sess models.Session, userID string) error {
	if err := s.requireAdmin(ctx, sess); err != nil {
		return err
	}

	victim, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	files, err := s.records.ListByOwner(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to enumerate files for user %s: %w", userID, err)
	}

	adminSess := sess
	for _, file := range files {
		err := s.fileService.Delete(ctx, adminSess, file.ID.Hex())
		if err != nil && !errors.Is(err, ErrNotFound) {
			// Stop here; the files deleted so far stay deleted and a
			// re-invocation picks up the remainder.
			return fmt.Errorf("failed to delete file %s for user %s: %w", file.ID.Hex(), userID, err)
		}
	}

	if err := s.users.Delete(ctx, userID); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to delete user %s: %w", userID, err)
	}

	log.Printf("[AdminService] deleted user %s (%s) and %d files", userID, victim.Email, len(files))
	s.bus.Publish(Event{Topic: TopicUsers})
	s.bus.Publish(Event{Topic: TopicFiles, OwnerID: userID})
	return nil
}
