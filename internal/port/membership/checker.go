// Package membership defines the project membership authorization port.
//
// Every public mutation consults this check before touching storage. The
// core records membership rows but treats the authorization decision as an
// external collaborator concern behind this interface.
package membership

import "context"

// Checker answers whether a user belongs to a project's team.
type Checker interface {
	IsMember(ctx context.Context, projectID, userID string) (bool, error)
}
