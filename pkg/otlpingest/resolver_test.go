package otlpingest

import (
	"context"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/analytiqhub/docrouter/internal/accesstoken"
	"github.com/analytiqhub/docrouter/internal/auth"
)

type fakeTokenVerifier struct {
	token *accesstoken.AccessToken
	err   error
}

func (f *fakeTokenVerifier) Verify(_ context.Context, _ string) (*accesstoken.AccessToken, error) {
	return f.token, f.err
}

func ctxWithMD(md metadata.MD) context.Context {
	return metadata.NewIncomingContext(context.Background(), md)
}

func TestResolve_NoMetadata(t *testing.T) {
	r := NewOrgResolver(nil, &fakeTokenVerifier{})
	_, err := r.Resolve(context.Background())
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}
}

func TestResolve_AccessToken(t *testing.T) {
	orgID := "org123"
	tokens := &fakeTokenVerifier{token: &accesstoken.AccessToken{UserID: "u1", OrganizationID: &orgID}}
	r := NewOrgResolver(nil, tokens)

	md := metadata.Pairs("authorization", "Bearer acc_sometoken")
	caller, err := r.Resolve(ctxWithMD(md))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if caller.OrgID != orgID || caller.UploadedBy != "u1" {
		t.Fatalf("unexpected caller: %+v", caller)
	}
}

func TestResolve_AccessTokenAccountScoped_FallsThrough(t *testing.T) {
	tokens := &fakeTokenVerifier{token: &accesstoken.AccessToken{UserID: "u1", OrganizationID: nil}}
	r := NewOrgResolver(nil, tokens)

	md := metadata.Pairs("authorization", "Bearer acc_sometoken", "organization-id", "org456")
	caller, err := r.Resolve(ctxWithMD(md))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if caller.OrgID != "org456" {
		t.Fatalf("expected fall-through to organization-id header, got %+v", caller)
	}
}

func TestResolve_JWT(t *testing.T) {
	issuer := auth.NewJWTIssuer("test-secret")
	raw, err := issuer.Issue("user1", "u1@example.com", "User One", auth.RoleUser, "org789", time.Hour)
	if err != nil {
		t.Fatalf("issuing token: %v", err)
	}
	r := NewOrgResolver(issuer, &fakeTokenVerifier{})

	md := metadata.Pairs("authorization", "Bearer "+raw)
	caller, err := r.Resolve(ctxWithMD(md))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if caller.OrgID != "org789" || caller.UploadedBy != "user1" {
		t.Fatalf("unexpected caller: %+v", caller)
	}
}

func TestResolve_OrganizationIDHeader(t *testing.T) {
	r := NewOrgResolver(nil, &fakeTokenVerifier{})
	md := metadata.Pairs("organization-id", "org999")
	caller, err := r.Resolve(ctxWithMD(md))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if caller.OrgID != "org999" {
		t.Fatalf("unexpected caller: %+v", caller)
	}
}

func TestResolve_AuthoritySubdomain(t *testing.T) {
	r := NewOrgResolver(nil, &fakeTokenVerifier{})
	md := metadata.Pairs(":authority", "org-abc123.telemetry.example.com:4317")
	caller, err := r.Resolve(ctxWithMD(md))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if caller.OrgID != "abc123" {
		t.Fatalf("unexpected caller: %+v", caller)
	}
}

func TestOrgIDFromAuthority(t *testing.T) {
	cases := []struct {
		authority string
		wantID    string
		wantOK    bool
	}{
		{"org-abc.example.com", "abc", true},
		{"org-abc.example.com:443", "abc", true},
		{"example.com", "", false},
		{"org-.example.com", "", false},
	}
	for _, c := range cases {
		id, ok := orgIDFromAuthority(c.authority)
		if id != c.wantID || ok != c.wantOK {
			t.Errorf("orgIDFromAuthority(%q) = (%q, %v), want (%q, %v)", c.authority, id, ok, c.wantID, c.wantOK)
		}
	}
}
