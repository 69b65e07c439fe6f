package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/freshbasket/freshbasket/internal/logging"
	"github.com/freshbasket/freshbasket/internal/models"
)

const (
	maxUserNameLength = 120
	pincodeLength     = 6
)

type UserService struct {
	users        UserRepository
	admins       AdminRepository
	storeTimeout time.Duration
	logger       *slog.Logger
}

func NewUserService(users UserRepository, admins AdminRepository, storeTimeout time.Duration, logger *slog.Logger) (*UserService, error) {
	if users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if admins == nil {
		return nil, fmt.Errorf("admin repository is required")
	}
	return &UserService{
		users:        users,
		admins:       admins,
		storeTimeout: storeTimeout,
		logger:       logger,
	}, nil
}

func (s *UserService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

func (s *UserService) GetProfile(ctx context.Context, requester models.Identity) (*models.User, error) {
	if err := requireUser(requester); err != nil {
		return nil, err
	}
	ctx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()

	user, err := s.users.GetByID(ctx, requester.ID)
	if err != nil {
		return nil, storeError("get profile", err)
	}
	return user, nil
}

type ProfileInput struct {
	Name    *string
	Address *models.Address
}

// UpdateProfile sets the name when given and merges the non-empty address
// fields into the stored address.
func (s *UserService) UpdateProfile(ctx context.Context, requester models.Identity, input ProfileInput) (*models.User, error) {
	if err := requireUser(requester); err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if len(name) > maxUserNameLength {
			return nil, validationError("name must be at most %d characters", maxUserNameLength)
		}
		input.Name = &name
	}
	if input.Address != nil {
		pincode := strings.TrimSpace(input.Address.Pincode)
		if pincode != "" && !isPincode(pincode) {
			return nil, validationError("pincode must be %d digits", pincodeLength)
		}
	}

	ctx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()

	user, err := s.users.GetByID(ctx, requester.ID)
	if err != nil {
		return nil, storeError("get profile", err)
	}
	if input.Name != nil {
		user.Name = *input.Name
	}
	if input.Address != nil {
		user.Address = mergeAddress(user.Address, *input.Address)
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, storeError("update profile", err)
	}
	s.loggerFromContext(ctx).Info("profile updated", "user_id", user.ID)
	return user, nil
}

func mergeAddress(current, update models.Address) models.Address {
	pick := func(next, prev string) string {
		if next = strings.TrimSpace(next); next != "" {
			return next
		}
		return prev
	}
	return models.Address{
		HouseNo:      pick(update.HouseNo, current.HouseNo),
		LaneOrSector: pick(update.LaneOrSector, current.LaneOrSector),
		Landmark:     pick(update.Landmark, current.Landmark),
		Pincode:      pick(update.Pincode, current.Pincode),
	}
}

func isPincode(value string) bool {
	if len(value) != pincodeLength {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (s *UserService) CurrentAdmin(ctx context.Context, requester models.Identity) (*models.Admin, error) {
	if err := requireAdmin(requester); err != nil {
		return nil, err
	}
	ctx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()

	admin, err := s.admins.GetByID(ctx, requester.ID)
	if err != nil {
		return nil, storeError("get admin", err)
	}
	return admin, nil
}

func (s *UserService) ListUsers(ctx context.Context, requester models.Identity) ([]*models.User, error) {
	if err := requireAdmin(requester); err != nil {
		return nil, err
	}
	ctx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()

	users, err := s.users.List(ctx)
	if err != nil {
		return nil, storeError("list users", err)
	}
	return users, nil
}

func (s *UserService) ListAdmins(ctx context.Context, requester models.Identity) ([]*models.Admin, error) {
	if err := requireAdmin(requester); err != nil {
		return nil, err
	}
	ctx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()

	admins, err := s.admins.List(ctx)
	if err != nil {
		return nil, storeError("list admins", err)
	}
	return admins, nil
}

// DeleteUser removes the account and its cart. Orders are kept for history.
func (s *UserService) DeleteUser(ctx context.Context, requester models.Identity, userID string) error {
	if err := requireAdmin(requester); err != nil {
		return err
	}
	ctx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()

	if err := s.users.Delete(ctx, userID); err != nil {
		return storeError("delete user", err)
	}
	s.loggerFromContext(ctx).Info("user deleted", "user_id", userID, "admin_id", requester.ID)
	return nil
}
