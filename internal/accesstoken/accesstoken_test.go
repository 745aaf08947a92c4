package accesstoken

import (
	"context"
	"testing"
	"time"

	"github.com/analytiqhub/docrouter/internal/apperr"
)

type fakeStore struct {
	byID map[string]*AccessToken
}

func newFakeStore() *fakeStore {
	return &fakeStore{byID: make(map[string]*AccessToken)}
}

func (s *fakeStore) Create(_ context.Context, t *AccessToken) error {
	s.byID[t.ID] = t
	return nil
}

func (s *fakeStore) GetByID(_ context.Context, id string) (*AccessToken, error) {
	t, ok := s.byID[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "access token not found")
	}
	return t, nil
}

func (s *fakeStore) ListByUser(_ context.Context, userID string) ([]*AccessToken, error) {
	var out []*AccessToken
	for _, t := range s.byID {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeStore) Delete(_ context.Context, id, userID string) error {
	t, ok := s.byID[id]
	if !ok || t.UserID != userID {
		return apperr.New(apperr.NotFound, "access token not found")
	}
	delete(s.byID, id)
	return nil
}

func TestMintAndVerify(t *testing.T) {
	store := newFakeStore()
	iss := NewIssuer(store, NewEncryptor("test-key-material"))

	raw, tok, err := iss.Mint(context.Background(), "user1", "", "ci token", time.Hour)
	if err != nil {
		t.Fatalf("Mint() error: %v", err)
	}
	if tok.OrganizationID != nil {
		t.Errorf("expected account-level token, got OrganizationID=%v", *tok.OrganizationID)
	}

	got, err := iss.Verify(context.Background(), raw)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if got.ID != tok.ID {
		t.Errorf("Verify() returned ID %q, want %q", got.ID, tok.ID)
	}
}

func TestMint_OrgScoped(t *testing.T) {
	store := newFakeStore()
	iss := NewIssuer(store, NewEncryptor("test-key-material"))

	_, tok, err := iss.Mint(context.Background(), "user1", "org1", "org token", time.Hour)
	if err != nil {
		t.Fatalf("Mint() error: %v", err)
	}
	if tok.OrganizationID == nil || *tok.OrganizationID != "org1" {
		t.Errorf("expected OrganizationID=org1, got %v", tok.OrganizationID)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	store := newFakeStore()
	iss := NewIssuer(store, NewEncryptor("test-key-material"))

	raw, tok, err := iss.Mint(context.Background(), "user1", "", "token", time.Hour)
	if err != nil {
		t.Fatalf("Mint() error: %v", err)
	}

	tampered := Prefix + tok.ID + "." + raw[len(Prefix+tok.ID+"."):len(raw)-2] + "00"
	if _, err := iss.Verify(context.Background(), tampered); err == nil {
		t.Error("Verify() with tampered secret succeeded, want error")
	}
}

func TestVerify_Expired(t *testing.T) {
	store := newFakeStore()
	iss := NewIssuer(store, NewEncryptor("test-key-material"))

	raw, _, err := iss.Mint(context.Background(), "user1", "", "token", -time.Hour)
	if err != nil {
		t.Fatalf("Mint() error: %v", err)
	}

	if _, err := iss.Verify(context.Background(), raw); err == nil {
		t.Error("Verify() with expired token succeeded, want error")
	}
}

func TestVerify_Malformed(t *testing.T) {
	store := newFakeStore()
	iss := NewIssuer(store, NewEncryptor("test-key-material"))

	tests := []string{
		"",
		"acc_",
		"notaprefix_abc",
		Prefix + "tooshort",
	}

	for _, raw := range tests {
		if _, err := iss.Verify(context.Background(), raw); err == nil {
			t.Errorf("Verify(%q) succeeded, want error", raw)
		}
	}
}

func TestDelete_WrongUser(t *testing.T) {
	store := newFakeStore()
	iss := NewIssuer(store, NewEncryptor("test-key-material"))

	_, tok, err := iss.Mint(context.Background(), "user1", "", "token", time.Hour)
	if err != nil {
		t.Fatalf("Mint() error: %v", err)
	}

	if err := store.Delete(context.Background(), tok.ID, "user2"); err == nil {
		t.Error("Delete() by wrong user succeeded, want error")
	}
}
