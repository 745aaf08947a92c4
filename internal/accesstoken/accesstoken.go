// Package accesstoken implements DocRouter's AccessToken entity: a
// long-lived bearer credential scoped to a user and, optionally, a single
// organization. It merges the teacher's separate API-key and personal
// access token concepts into the spec's single AccessToken shape.
package accesstoken

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/analytiqhub/docrouter/internal/apperr"
	"github.com/analytiqhub/docrouter/internal/idgen"
)

// Prefix identifies a DocRouter bearer access token in the Authorization header.
const Prefix = "acc_"

const secretLen = 32 // bytes of random secret material per token

// AccessToken is the persisted row. EncryptedSecret is the AEAD-sealed
// random secret; the plaintext secret is never stored.
type AccessToken struct {
	ID              string
	UserID          string
	OrganizationID  *string // nil: account-level token; set: org-scoped token
	Name            string
	EncryptedSecret []byte
	CreatedAt       time.Time
	Lifetime        time.Duration
}

// ExpiresAt returns the token's expiry instant.
func (t *AccessToken) ExpiresAt() time.Time {
	return t.CreatedAt.Add(t.Lifetime)
}

// Store persists and looks up access tokens.
type Store interface {
	Create(ctx context.Context, t *AccessToken) error
	GetByID(ctx context.Context, id string) (*AccessToken, error)
	ListByUser(ctx context.Context, userID string) ([]*AccessToken, error)
	Delete(ctx context.Context, id, userID string) error
}

// Issuer mints and verifies access tokens.
type Issuer struct {
	store Store
	enc   *Encryptor
}

// NewIssuer creates an Issuer backed by store, encrypting secrets with enc.
func NewIssuer(store Store, enc *Encryptor) *Issuer {
	return &Issuer{store: store, enc: enc}
}

// Mint creates a new access token for userID (optionally scoped to
// organizationID) and returns the raw bearer value to hand back to the
// caller exactly once; it is never retrievable again.
func (iss *Issuer) Mint(ctx context.Context, userID, organizationID, name string, lifetime time.Duration) (raw string, tok *AccessToken, err error) {
	secret := make([]byte, secretLen)
	if _, err := rand.Read(secret); err != nil {
		return "", nil, fmt.Errorf("generating token secret: %w", err)
	}

	sealed, err := iss.enc.Seal(secret)
	if err != nil {
		return "", nil, fmt.Errorf("sealing token secret: %w", err)
	}

	id := idgen.New()
	tok = &AccessToken{
		ID:              id,
		UserID:          userID,
		Name:            name,
		EncryptedSecret: sealed,
		CreatedAt:       time.Now(),
		Lifetime:        lifetime,
	}
	if organizationID != "" {
		tok.OrganizationID = &organizationID
	}

	if err := iss.store.Create(ctx, tok); err != nil {
		return "", nil, fmt.Errorf("persisting access token: %w", err)
	}

	raw = Prefix + id + "." + hex.EncodeToString(secret)
	return raw, tok, nil
}

// Verify parses a raw bearer value, looks up its token by ID, decrypts the
// stored secret, and compares it in constant time against the presented
// secret. Returns apperr.Authorization on any mismatch or expiry.
func (iss *Issuer) Verify(ctx context.Context, raw string) (*AccessToken, error) {
	id, presented, err := splitRaw(raw)
	if err != nil {
		return nil, apperr.Wrap(apperr.Authorization, "malformed access token", err)
	}

	tok, err := iss.store.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(apperr.Authorization, "unknown access token", err)
	}

	if time.Now().After(tok.ExpiresAt()) {
		return nil, apperr.New(apperr.Authorization, "access token expired")
	}

	secret, err := iss.enc.Open(tok.EncryptedSecret)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "decrypting access token secret", err)
	}

	if subtle.ConstantTimeCompare(secret, presented) != 1 {
		return nil, apperr.New(apperr.Authorization, "invalid access token")
	}

	return tok, nil
}

func splitRaw(raw string) (id string, secret []byte, err error) {
	if len(raw) <= len(Prefix) {
		return "", nil, fmt.Errorf("token too short")
	}
	body := raw[len(Prefix):]

	idLen := idgen.Len
	if len(body) < idLen+1 || body[idLen] != '.' {
		return "", nil, fmt.Errorf("malformed token body")
	}

	id = body[:idLen]
	secretHex := body[idLen+1:]

	secret, err = hex.DecodeString(secretHex)
	if err != nil {
		return "", nil, fmt.Errorf("decoding token secret: %w", err)
	}
	return id, secret, nil
}
