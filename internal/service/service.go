// Package service implements business logic on top of ports.
package service

import (
	"context"
	"fmt"

	"github.com/codescope/codescope/internal/domain"
	"github.com/codescope/codescope/internal/port/membership"
)

// requireMember rejects callers who are not on the project's team. An
// empty actor means the gateway sent no identity at all.
func requireMember(ctx context.Context, members membership.Checker, projectID, actor string) error {
	if actor == "" {
		return fmt.Errorf("missing actor identity: %w", domain.ErrForbidden)
	}
	ok, err := members.IsMember(ctx, projectID, actor)
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if !ok {
		return fmt.Errorf("user %s is not a member of project %s: %w", actor, projectID, domain.ErrForbidden)
	}
	return nil
}
