package users

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-iam/internal/rbac"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	GetUsersByIDs(ctx context.Context, ids []int64) ([]User, error)
	CreateUser(ctx context.Context, email, name, passwordHash string) (User, error)
	SetActive(ctx context.Context, id int64, active bool) error
}

// Service handles user business logic.
type Service struct {
	repo       RepositoryPort
	bcryptCost int
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, bcryptCost: bcrypt.DefaultCost}
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// CreateUser provisions a user account.
func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return User{}, err
	}
	return s.repo.CreateUser(ctx, strings.TrimSpace(in.Email), strings.TrimSpace(in.Name), string(hash))
}

// SetActive activates or deactivates a user. Deactivated users keep their grants
// but cannot log in or receive new ones.
func (s *Service) SetActive(ctx context.Context, id int64, active bool) error {
	return s.repo.SetActive(ctx, id, active)
}

// Subject exposes a user to the grant manager.
func (s *Service) Subject(ctx context.Context, id int64) (rbac.Subject, error) {
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return rbac.Subject{}, rbac.ErrNotFound
		}
		return rbac.Subject{}, err
	}
	return toSubject(user), nil
}

// Subjects returns the live users among ids.
func (s *Service) Subjects(ctx context.Context, ids []int64) ([]rbac.Subject, error) {
	users, err := s.repo.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]rbac.Subject, 0, len(users))
	for _, user := range users {
		if user.DeletedAt != nil {
			continue
		}
		out = append(out, toSubject(user))
	}
	return out, nil
}

func toSubject(user User) rbac.Subject {
	return rbac.Subject{
		ID:      user.ID,
		Name:    user.Name,
		Email:   user.Email,
		Active:  user.IsActive,
		Deleted: user.DeletedAt != nil,
	}
}

var _ rbac.UserDirectory = (*Service)(nil)
