package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/followup/ticket-service/internal/domain"
	"github.com/followup/ticket-service/internal/repository"
	apperrors "github.com/followup/ticket-service/pkg/util/errorutil"
)

// DirectoryService maintains the users that tickets can be assigned to.
type DirectoryService struct {
	users  repository.UserRepository
	logger *zap.Logger
}

// UpsertUserInput describes a directory entry.
type UpsertUserInput struct {
	Email  string
	Name   string
	Role   domain.Role
	Active bool
}

// NewDirectoryService constructs the service.
func NewDirectoryService(users repository.UserRepository, logger *zap.Logger) *DirectoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectoryService{users: users, logger: logger}
}

// Get returns a directory user.
func (s *DirectoryService) Get(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, strings.TrimSpace(userID))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("user", map[string]any{"id": userID})
		}
		return nil, apperrors.NewStoreFailure(err)
	}
	return user, nil
}

// Upsert creates or replaces the directory entry for userID.
func (s *DirectoryService) Upsert(ctx context.Context, userID string, input UpsertUserInput) (*domain.User, error) {
	user := &domain.User{
		ID:     strings.TrimSpace(userID),
		Email:  strings.ToLower(strings.TrimSpace(input.Email)),
		Name:   strings.TrimSpace(input.Name),
		Role:   domain.Role(strings.ToLower(strings.TrimSpace(string(input.Role)))),
		Active: input.Active,
	}

	problems := map[string]string{}
	if user.ID == "" {
		problems["id"] = "is required"
	}
	if at := strings.Index(user.Email, "@"); at <= 0 || at == len(user.Email)-1 {
		problems["email"] = "must be a valid email address"
	}
	if !user.Role.Valid() {
		problems["role"] = "is not a known role"
	}
	if len(problems) > 0 {
		return nil, apperrors.NewValidationError("invalid user", problems)
	}

	if err := s.users.Upsert(ctx, user); err != nil {
		s.logger.Warn("user upsert failed", zap.String("user_id", user.ID), zap.Error(err))
		return nil, apperrors.NewStoreFailure(err)
	}
	s.logger.Debug("directory user saved", zap.String("user_id", user.ID), zap.Bool("active", user.Active))
	return user, nil
}
