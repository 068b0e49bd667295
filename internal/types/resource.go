package types

import "time"

// ResourceState is the lifecycle state of a monitored resource (typically a
// pull/merge request on the git platform).
type ResourceState string

// Resource state constants
const (
	ResourceOpen   ResourceState = "open"
	ResourceDraft  ResourceState = "draft"
	ResourceMerged ResourceState = "merged"
	ResourceClosed ResourceState = "closed"
)

// IsValid checks if the resource state value is valid
func (s ResourceState) IsValid() bool {
	switch s {
	case ResourceOpen, ResourceDraft, ResourceMerged, ResourceClosed:
		return true
	}
	return false
}

// Terminal reports whether the resource needs no further monitoring.
func (s ResourceState) Terminal() bool {
	return s == ResourceMerged || s == ResourceClosed
}

// CheckStatus is the state of one CI check run.
type CheckStatus string

// Check status constants
const (
	CheckQueued    CheckStatus = "queued"
	CheckRunning   CheckStatus = "running"
	CheckPassed    CheckStatus = "passed"
	CheckFailed    CheckStatus = "failed"
	CheckCancelled CheckStatus = "cancelled"
)

// IsValid checks if the check status value is valid
func (s CheckStatus) IsValid() bool {
	switch s {
	case CheckQueued, CheckRunning, CheckPassed, CheckFailed, CheckCancelled:
		return true
	}
	return false
}

// Check is one CI check run attached to a resource.
type Check struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Status      CheckStatus `json:"status"`
	Summary     string      `json:"summary,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// ReviewVerdict is the outcome a reviewer submitted.
type ReviewVerdict string

// Review verdict constants
const (
	ReviewApproved         ReviewVerdict = "approved"
	ReviewChangesRequested ReviewVerdict = "changes_requested"
	ReviewCommented        ReviewVerdict = "commented"
	ReviewDismissed        ReviewVerdict = "dismissed"
)

// Review is one submitted review on a resource.
type Review struct {
	ID          string        `json:"id"`
	Author      string        `json:"author"`
	Verdict     ReviewVerdict `json:"verdict"`
	SubmittedAt time.Time     `json:"submitted_at"`
}

// Comment is one discussion comment on a resource.
type Comment struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// ResourceStatus is a point-in-time snapshot of a monitored resource as
// reported by the platform.
type ResourceStatus struct {
	ResourceID string        `json:"resource_id"`
	State      ResourceState `json:"state"`
	Mergeable  bool          `json:"mergeable"`
	Reviews    []Review      `json:"reviews,omitempty"`
	Comments   []Comment     `json:"comments,omitempty"`
	Checks     []Check       `json:"checks,omitempty"`
	FetchedAt  time.Time     `json:"fetched_at"`
}

// Approved reports whether the snapshot has at least one approving review
// and no unresolved change requests.
func (r *ResourceStatus) Approved() bool {
	approved := false
	for _, rev := range r.Reviews {
		switch rev.Verdict {
		case ReviewApproved:
			approved = true
		case ReviewChangesRequested:
			return false
		}
	}
	return approved
}

// ChecksGreen reports whether every check has passed. Pending or failed
// checks both count against readiness; a resource with no checks is green.
func (r *ResourceStatus) ChecksGreen() bool {
	for _, c := range r.Checks {
		if c.Status != CheckPassed {
			return false
		}
	}
	return true
}

// MergeReady reports whether the resource is open, mergeable, approved, and
// has all checks green.
func (r *ResourceStatus) MergeReady() bool {
	return r.State == ResourceOpen && r.Mergeable && r.Approved() && r.ChecksGreen()
}
