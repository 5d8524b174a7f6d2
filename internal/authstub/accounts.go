package authstub

import (
	"context"
	"errors"
	"strings"

	"github.com/sail-program/sail-gateway/internal/domain"
	"github.com/sail-program/sail-gateway/internal/repository"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("no active account found with the given credentials")
)

// Accounts registers and authenticates users on top of a repository.
type Accounts struct {
	repo repository.AccountRepository
	cost int
}

// NewAccounts hashes passwords with bcrypt cost.
func NewAccounts(repo repository.AccountRepository, cost int) *Accounts {
	return &Accounts{repo: repo, cost: cost}
}

// Create registers an account.
func (a *Accounts) Create(ctx context.Context, acc domain.Account, password string) (*domain.Account, error) {
	hash, err := HashPassword(password, a.cost)
	if err != nil {
		return nil, err
	}
	acc.Email = strings.TrimSpace(acc.Email)
	acc.PasswordHash = hash

	if err := a.repo.Create(ctx, &acc); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return &acc, nil
}

// Authenticate checks the password of the account named by username, which
// is its email address.
func (a *Accounts) Authenticate(ctx context.Context, username, password string) (*domain.Account, error) {
	acc, err := a.repo.GetByEmail(ctx, strings.TrimSpace(username))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := ComparePassword(acc.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	return acc, nil
}

// ByID finds an account by its identifier.
func (a *Accounts) ByID(ctx context.Context, id int) (*domain.Account, error) {
	return a.repo.GetByID(ctx, id)
}
