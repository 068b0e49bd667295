// Package platform defines the git/CI platform collaborator consumed by the
// status monitor. Real REST/GraphQL clients live outside this module; the
// engine only ever sees this narrow surface.
package platform

import (
	"context"

	"github.com/tammahq/tamma/internal/types"
)

// StatusProvider is the external platform surface the monitor polls.
type StatusProvider interface {
	// GetResourceStatus fetches the current snapshot of one resource
	// (typically a pull request): state, checks, reviews, comments.
	GetResourceStatus(ctx context.Context, resourceID string) (*types.ResourceStatus, error)

	// RetryCheck re-queues one CI check. Called when the retry engine
	// affirms a retry for a CI-specific failure.
	RetryCheck(ctx context.Context, resourceID, checkID string) error

	// PostComment posts a discussion comment on the resource.
	PostComment(ctx context.Context, resourceID, text string) error
}
