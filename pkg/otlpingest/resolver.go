// Package otlpingest implements the OTLP/gRPC transport of the telemetry
// plane: a grpc.Server exposing the standard collector Export RPCs for
// traces, metrics, and logs. Each RPC resolves the calling organization,
// bills one SPU per record through pkg/credit, and persists through the
// same pkg/telemetryingest Store the HTTP transport writes through, so
// list/download semantics are identical regardless of which transport a
// record arrived on.
package otlpingest

import (
	"context"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/analytiqhub/docrouter/internal/accesstoken"
	"github.com/analytiqhub/docrouter/internal/auth"
)

// Caller is the resolved identity of an OTLP request: which organization
// it is billed/stored against, and who (if known) to record as uploader.
type Caller struct {
	OrgID      string
	UploadedBy string
}

// OrgResolver resolves the calling organization for an OTLP request,
// trying in order: the Authorization bearer token (JWT or access token),
// the "organization-id" metadata header, then an "org-<id>" subdomain in
// the ":authority" pseudo-header, per spec §4.J.
type OrgResolver struct {
	jwtIssuer *auth.JWTIssuer
	tokens    auth.TokenVerifier
}

// NewOrgResolver creates an OrgResolver. jwtIssuer may be nil when JWT
// auth is not configured, matching auth.Middleware's HTTP-side contract.
func NewOrgResolver(jwtIssuer *auth.JWTIssuer, tokens auth.TokenVerifier) *OrgResolver {
	return &OrgResolver{jwtIssuer: jwtIssuer, tokens: tokens}
}

// Resolve returns the Caller for ctx's incoming metadata, or a gRPC
// Unauthenticated status if no resolution method succeeds.
func (r *OrgResolver) Resolve(ctx context.Context) (Caller, error) {
	md, _ := metadata.FromIncomingContext(ctx)

	if c, ok := r.fromBearer(ctx, md); ok {
		return c, nil
	}
	if vals := md.Get("organization-id"); len(vals) > 0 && vals[0] != "" {
		return Caller{OrgID: vals[0]}, nil
	}
	// ":authority" is the HTTP/2 pseudo-header carrying the request's host;
	// grpc-go does not guarantee it is surfaced through incoming metadata
	// on every transport/proxy path, so this is a best-effort third choice
	// behind the two metadata-based methods above, not the primary path.
	if vals := md.Get(":authority"); len(vals) > 0 {
		if id, ok := orgIDFromAuthority(vals[0]); ok {
			return Caller{OrgID: id}, nil
		}
	}

	return Caller{}, status.Error(codes.Unauthenticated, "unable to resolve organization for this request")
}

func (r *OrgResolver) fromBearer(ctx context.Context, md metadata.MD) (Caller, bool) {
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return Caller{}, false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(vals[0], "Bearer "))
	if raw == "" {
		return Caller{}, false
	}

	if strings.HasPrefix(raw, accesstoken.Prefix) {
		tok, err := r.tokens.Verify(ctx, raw)
		if err != nil || tok.OrganizationID == nil {
			return Caller{}, false
		}
		return Caller{OrgID: *tok.OrganizationID, UploadedBy: tok.UserID}, true
	}

	if r.jwtIssuer == nil {
		return Caller{}, false
	}
	claims, err := r.jwtIssuer.Verify(raw)
	if err != nil || claims.OrganizationID == "" {
		return Caller{}, false
	}
	return Caller{OrgID: claims.OrganizationID, UploadedBy: claims.Subject}, true
}

// orgIDFromAuthority extracts the id from an "org-<id>[.domain][:port]"
// authority string.
func orgIDFromAuthority(authority string) (string, bool) {
	host := authority
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	sub := strings.SplitN(host, ".", 2)[0]
	const prefix = "org-"
	if !strings.HasPrefix(sub, prefix) || sub == prefix {
		return "", false
	}
	return strings.TrimPrefix(sub, prefix), true
}
