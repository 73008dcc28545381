package service

import (
	"context"

	"carpool/internal/domain"
	"carpool/internal/repository"
)

// IdentityService answers identity questions from the users table.
type IdentityService struct {
	users repository.UserRepository
}

// NewIdentityService creates a new IdentityService.
func NewIdentityService(users repository.UserRepository) *IdentityService {
	return &IdentityService{users: users}
}

// GetUser returns the user or ErrNotFound.
func (s *IdentityService) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	if userID == "" {
		return nil, invalidArgument("user id is required")
	}
	return s.users.GetByID(ctx, userID)
}

// IsVerifiedDriver reports whether the user may publish trips.
func (s *IdentityService) IsVerifiedDriver(ctx context.Context, userID string) (bool, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return user.IsVerifiedDriver, nil
}

var _ IdentityProvider = (*IdentityService)(nil)
