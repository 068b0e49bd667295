package platform

import (
	"context"
	"fmt"
	"sync"

	"github.com/tammahq/tamma/internal/types"
)

// Fake is an in-memory StatusProvider for tests and local dry runs. Snapshots
// are set per resource; polls return a copy of the latest one. Every call is
// counted, and an error can be injected per resource to exercise poll-failure
// paths.
type Fake struct {
	mu       sync.Mutex
	statuses map[string]*types.ResourceStatus
	pollErrs map[string]error
	polls    map[string]int
	retried  []RetriedCheck
	comments []PostedComment
	retryErr error
}

// RetriedCheck records one RetryCheck call.
type RetriedCheck struct {
	ResourceID string
	CheckID    string
}

// PostedComment records one PostComment call.
type PostedComment struct {
	ResourceID string
	Text       string
}

// NewFake creates an empty fake provider.
func NewFake() *Fake {
	return &Fake{
		statuses: make(map[string]*types.ResourceStatus),
		pollErrs: make(map[string]error),
		polls:    make(map[string]int),
	}
}

// SetStatus installs the snapshot returned by subsequent polls of resourceID.
func (f *Fake) SetStatus(resourceID string, status *types.ResourceStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[resourceID] = status
	delete(f.pollErrs, resourceID)
}

// FailPolls makes polls of resourceID return err until the next SetStatus.
func (f *Fake) FailPolls(resourceID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pollErrs[resourceID] = err
}

// FailRetries makes RetryCheck return err.
func (f *Fake) FailRetries(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retryErr = err
}

// PollCount returns how many times resourceID has been polled.
func (f *Fake) PollCount(resourceID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls[resourceID]
}

// RetriedChecks returns every RetryCheck call so far.
func (f *Fake) RetriedChecks() []RetriedCheck {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]RetriedCheck, len(f.retried))
	copy(out, f.retried)
	return out
}

// Comments returns every PostComment call so far.
func (f *Fake) Comments() []PostedComment {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]PostedComment, len(f.comments))
	copy(out, f.comments)
	return out
}

// GetResourceStatus implements StatusProvider.
func (f *Fake) GetResourceStatus(_ context.Context, resourceID string) (*types.ResourceStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls[resourceID]++
	if err := f.pollErrs[resourceID]; err != nil {
		return nil, err
	}
	status, ok := f.statuses[resourceID]
	if !ok {
		return nil, fmt.Errorf("unknown resource %s", resourceID)
	}
	copied := *status
	copied.Reviews = append([]types.Review(nil), status.Reviews...)
	copied.Comments = append([]types.Comment(nil), status.Comments...)
	copied.Checks = append([]types.Check(nil), status.Checks...)
	return &copied, nil
}

// RetryCheck implements StatusProvider.
func (f *Fake) RetryCheck(_ context.Context, resourceID, checkID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.retryErr != nil {
		return f.retryErr
	}
	f.retried = append(f.retried, RetriedCheck{ResourceID: resourceID, CheckID: checkID})
	return nil
}

// PostComment implements StatusProvider.
func (f *Fake) PostComment(_ context.Context, resourceID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments = append(f.comments, PostedComment{ResourceID: resourceID, Text: text})
	return nil
}

var _ StatusProvider = (*Fake)(nil)
