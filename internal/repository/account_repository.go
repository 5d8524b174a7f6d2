package repository

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sail-program/sail-gateway/internal/domain"
)

var (
	ErrNotFound  = errors.New("account not found")
	ErrDuplicate = errors.New("account already exists")
)

// AccountRepository defines persistence access for stub accounts.
// Emails are matched case-insensitively.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id int) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
}

type accountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository returns a Postgres-backed implementation.
func NewAccountRepository(pool *pgxpool.Pool) AccountRepository {
	return &accountRepository{pool: pool}
}

const accountColumns = `id, email, password_hash, role, first_name, last_name, organization_name, created_at`

func (r *accountRepository) Create(ctx context.Context, account *domain.Account) error {
	const query = `
        INSERT INTO stub_accounts (email, password_hash, role, first_name, last_name, organization_name)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, created_at`

	err := r.pool.QueryRow(ctx, query,
		account.Email,
		account.PasswordHash,
		account.Role,
		account.FirstName,
		account.LastName,
		account.OrganizationName,
	).Scan(&account.ID, &account.CreatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

func (r *accountRepository) GetByID(ctx context.Context, id int) (*domain.Account, error) {
	return r.get(ctx, `SELECT `+accountColumns+` FROM stub_accounts WHERE id=$1`, id)
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.get(ctx, `SELECT `+accountColumns+` FROM stub_accounts WHERE lower(email)=lower($1)`, email)
}

func (r *accountRepository) get(ctx context.Context, query string, arg any) (*domain.Account, error) {
	var account domain.Account
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&account.ID,
		&account.Email,
		&account.PasswordHash,
		&account.Role,
		&account.FirstName,
		&account.LastName,
		&account.OrganizationName,
		&account.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &account, nil
}

type memoryAccountRepository struct {
	mu     sync.RWMutex
	nextID int
	byID   map[int]domain.Account
}

// NewMemoryAccountRepository returns an in-process implementation.
func NewMemoryAccountRepository() AccountRepository {
	return &memoryAccountRepository{nextID: 1, byID: make(map[int]domain.Account)}
}

func (r *memoryAccountRepository) Create(_ context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if strings.EqualFold(existing.Email, account.Email) {
			return ErrDuplicate
		}
	}
	account.ID = r.nextID
	account.CreatedAt = time.Now().UTC()
	r.nextID++
	r.byID[account.ID] = *account
	return nil
}

func (r *memoryAccountRepository) GetByID(_ context.Context, id int) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	account, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &account, nil
}

func (r *memoryAccountRepository) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, account := range r.byID {
		if strings.EqualFold(account.Email, email) {
			copied := account
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}
