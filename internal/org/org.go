// Package org resolves the organization scoping every DocRouter request
// operates under. Unlike the teacher's schema-per-tenant pkg/tenant (which
// switches Postgres search_path), DocRouter partitions a single schema by
// an organization_id column, so this package resolves and carries an ID,
// not a connection.
package org

import (
	"context"

	"github.com/analytiqhub/docrouter/internal/apperr"
)

// Info is the resolved organization for the current request.
type Info struct {
	ID   string
	Name string
}

type ctxKey string

const infoKey ctxKey = "org_info"

// NewContext stores Info in the context.
func NewContext(ctx context.Context, info *Info) context.Context {
	return context.WithValue(ctx, infoKey, info)
}

// FromContext extracts Info from the context, or nil if unset.
func FromContext(ctx context.Context) *Info {
	v, _ := ctx.Value(infoKey).(*Info)
	return v
}

// IDFromContext is a convenience accessor returning just the organization ID,
// or an error if no organization has been resolved for this request.
func IDFromContext(ctx context.Context) (string, error) {
	info := FromContext(ctx)
	if info == nil {
		return "", apperr.New(apperr.Authorization, "no organization resolved for this request")
	}
	return info.ID, nil
}
