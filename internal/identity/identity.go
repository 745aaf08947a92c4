// Package identity provides the minimal Postgres-backed identity store
// this module needs to satisfy auth.UserLookup, org.Membership, and
// accesstoken.Store. User/organization signup, invitation, and
// email-verification flows are an explicit spec Non-goal (treated as
// external collaborators); this package only persists and looks up the
// resolved (user, organization, membership, access token) tuples those
// interfaces already assume exist.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/analytiqhub/docrouter/internal/accesstoken"
	"github.com/analytiqhub/docrouter/internal/apperr"
	"github.com/analytiqhub/docrouter/internal/storage"
)

// User is a minimal account-level identity row.
type User struct {
	ID    string
	Email string
	Name  string
	Role  string
}

// Organization is a minimal tenant row.
type Organization struct {
	ID   string
	Name string
}

// Store persists users, organizations, their memberships, and access
// tokens. It implements auth.UserLookup, org.Membership, and
// accesstoken.Store.
type Store struct {
	dbtx storage.DBTX
}

// NewStore creates an identity Store.
func NewStore(dbtx storage.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

// GetUser implements auth.UserLookup.
func (s *Store) GetUser(ctx context.Context, userID string) (email, name, role string, err error) {
	row := s.dbtx.QueryRow(ctx, `SELECT email, name, role FROM users WHERE id = $1`, userID)
	if err := row.Scan(&email, &name, &role); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", "", apperr.New(apperr.NotFound, "user not found")
		}
		return "", "", "", fmt.Errorf("looking up user: %w", err)
	}
	return email, name, role, nil
}

// Lookup implements org.Membership.
func (s *Store) Lookup(ctx context.Context, organizationID, userID string) (name, role string, err error) {
	row := s.dbtx.QueryRow(ctx, `
		SELECT o.name, m.role
		FROM organizations o
		JOIN organization_members m ON m.organization_id = o.id
		WHERE o.id = $1 AND m.user_id = $2
	`, organizationID, userID)
	if err := row.Scan(&name, &role); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", apperr.New(apperr.NotFound, "not a member of this organization")
		}
		return "", "", fmt.Errorf("looking up organization membership: %w", err)
	}
	return name, role, nil
}

// CreateUser inserts a user row. Used only by seed/bootstrap tooling, not
// by any account-management HTTP handler (out of scope per spec.md §1).
func (s *Store) CreateUser(ctx context.Context, u User) error {
	_, err := s.dbtx.Exec(ctx, `INSERT INTO users (id, email, name, role) VALUES ($1, $2, $3, $4)`,
		u.ID, u.Email, u.Name, u.Role)
	if err != nil {
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

// CreateOrganization inserts an organization row.
func (s *Store) CreateOrganization(ctx context.Context, o Organization) error {
	_, err := s.dbtx.Exec(ctx, `INSERT INTO organizations (id, name) VALUES ($1, $2)`, o.ID, o.Name)
	if err != nil {
		return fmt.Errorf("creating organization: %w", err)
	}
	return nil
}

// AddMember inserts a membership row.
func (s *Store) AddMember(ctx context.Context, organizationID, userID, role string) error {
	_, err := s.dbtx.Exec(ctx, `
		INSERT INTO organization_members (organization_id, user_id, role) VALUES ($1, $2, $3)
		ON CONFLICT (organization_id, user_id) DO UPDATE SET role = EXCLUDED.role
	`, organizationID, userID, role)
	if err != nil {
		return fmt.Errorf("adding organization member: %w", err)
	}
	return nil
}

const accessTokenColumns = `id, user_id, organization_id, name, encrypted_secret, lifetime_seconds, created_at`

func scanAccessToken(row pgx.Row) (*accesstoken.AccessToken, error) {
	var t accesstoken.AccessToken
	var lifetimeSeconds int64
	if err := row.Scan(&t.ID, &t.UserID, &t.OrganizationID, &t.Name, &t.EncryptedSecret, &lifetimeSeconds, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.Lifetime = time.Duration(lifetimeSeconds) * time.Second
	return &t, nil
}

// Create implements accesstoken.Store.
func (s *Store) Create(ctx context.Context, t *accesstoken.AccessToken) error {
	_, err := s.dbtx.Exec(ctx, `
		INSERT INTO access_tokens (id, user_id, organization_id, name, encrypted_secret, lifetime_seconds, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, t.ID, t.UserID, t.OrganizationID, t.Name, t.EncryptedSecret, int64(t.Lifetime/time.Second), t.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating access token: %w", err)
	}
	return nil
}

// GetByID implements accesstoken.Store.
func (s *Store) GetByID(ctx context.Context, id string) (*accesstoken.AccessToken, error) {
	row := s.dbtx.QueryRow(ctx, `SELECT `+accessTokenColumns+` FROM access_tokens WHERE id = $1`, id)
	tok, err := scanAccessToken(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.New(apperr.NotFound, "access token not found")
		}
		return nil, fmt.Errorf("looking up access token: %w", err)
	}
	return tok, nil
}

// ListByUser implements accesstoken.Store.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]*accesstoken.AccessToken, error) {
	rows, err := s.dbtx.Query(ctx, `SELECT `+accessTokenColumns+` FROM access_tokens WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing access tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*accesstoken.AccessToken
	for rows.Next() {
		tok, err := scanAccessToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning access token row: %w", err)
		}
		tokens = append(tokens, tok)
	}
	return tokens, rows.Err()
}

// Delete implements accesstoken.Store.
func (s *Store) Delete(ctx context.Context, id, userID string) error {
	tag, err := s.dbtx.Exec(ctx, `DELETE FROM access_tokens WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("deleting access token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "access token not found")
	}
	return nil
}
