package auth

import (
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

// Claims is the payload carried by DocRouter session JWTs, signed HS256
// with FASTAPI_SECRET.
type Claims struct {
	jwt.Claims
	Email          string `json:"email"`
	Name           string `json:"name"`
	Role           string `json:"role"`
	OrganizationID string `json:"organization_id,omitempty"`
}

// JWTIssuer signs and verifies DocRouter session tokens.
type JWTIssuer struct {
	secret []byte
}

// NewJWTIssuer creates a JWTIssuer using secret as the HS256 signing key.
func NewJWTIssuer(secret string) *JWTIssuer {
	return &JWTIssuer{secret: []byte(secret)}
}

// Issue signs a new JWT for the given user, valid for lifetime.
func (j *JWTIssuer) Issue(userID, email, name, role, organizationID string, lifetime time.Duration) (string, error) {
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: j.secret}, nil)
	if err != nil {
		return "", fmt.Errorf("creating signer: %w", err)
	}

	now := time.Now()
	claims := Claims{
		Claims: jwt.Claims{
			Subject:  userID,
			IssuedAt: jwt.NewNumericDate(now),
			Expiry:   jwt.NewNumericDate(now.Add(lifetime)),
		},
		Email:          email,
		Name:           name,
		Role:           role,
		OrganizationID: organizationID,
	}

	token, err := jwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("serializing token: %w", err)
	}
	return token, nil
}

// Verify parses and validates a JWT, returning its claims.
func (j *JWTIssuer) Verify(raw string) (*Claims, error) {
	parsed, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	var claims Claims
	if err := parsed.Claims(j.secret, &claims); err != nil {
		return nil, fmt.Errorf("validating signature: %w", err)
	}

	if err := claims.Validate(jwt.Expected{Time: time.Now()}); err != nil {
		return nil, fmt.Errorf("validating claims: %w", err)
	}

	return &claims, nil
}
