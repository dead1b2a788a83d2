package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/snipshare/internal/apperror"
	"github.com/sakif/snipshare/internal/model"
	"github.com/sakif/snipshare/internal/repository"
)

// UserStore implements repository.UserRepository over the shared
// connection pool. Obtain it from DB.Users.
type UserStore struct {
	conn *sql.DB
}

var _ repository.UserRepository = (*UserStore)(nil)

// Create inserts a new user. The email is trimmed and lower-cased before
// storage so email uniqueness is case-insensitive.
//
// Duplicate detection relies on the UNIQUE constraint, not a pre-check: a
// SELECT-then-INSERT would race against a concurrent registration with the
// same email. The constraint violation is translated to apperror.ErrConflict.
func (s *UserStore) Create(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO users (id, name, role, email, avatar_url, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Name,
		user.Role,
		user.Email,
		user.AvatarURL,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("email already in use")
		}
		return fmt.Errorf("sqlite: creating user: %w", err)
	}

	return nil
}

const userColumns = `id, name, role, email, avatar_url, password_hash, created_at, updated_at`

func scanUser(row *sql.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Role,
		&u.Email,
		&u.AvatarURL,
		&u.PasswordHash,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByID retrieves a user by internal ID.
func (s *UserStore) GetByID(ctx context.Context, id string) (*model.User, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)

	u, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}

// GetByEmail retrieves a user by email, case-insensitively. The caller may
// pass any casing; the stored value is always lower-case.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	row := s.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email)

	u, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlite: getting user by email: %w", err)
	}
	return u, nil
}

// GetByIdentity resolves an external (provider, providerUserID) pair to the
// linked local user.
func (s *UserStore) GetByIdentity(ctx context.Context, provider, providerUserID string) (*model.User, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE id = (SELECT user_id FROM identities WHERE provider = ? AND provider_user_id = ?)`,
		provider, providerUserID)

	u, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("identity", provider+":"+providerUserID)
		}
		return nil, fmt.Errorf("sqlite: getting user by identity %s:%s: %w", provider, providerUserID, err)
	}
	return u, nil
}

// LinkIdentity records an external identity for an existing user. Linking
// the same identity twice is absorbed as success — concurrent first logins
// through the same provider account must converge, not error.
func (s *UserStore) LinkIdentity(ctx context.Context, identity *model.Identity) error {
	identity.CreatedAt = time.Now()

	_, err := s.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO identities (provider, provider_user_id, user_id, created_at)
		 VALUES (?, ?, ?, ?)`,
		identity.Provider,
		identity.ProviderUserID,
		identity.UserID,
		identity.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: linking identity %s:%s: %w", identity.Provider, identity.ProviderUserID, err)
	}

	return nil
}
