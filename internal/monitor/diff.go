package monitor

import (
	"github.com/tammahq/tamma/internal/types"
)

// TransitionKind classifies one detected change between two snapshots.
type TransitionKind string

// Transition kinds
const (
	TransitionStateChanged    TransitionKind = "state_changed"
	TransitionReviewReceived  TransitionKind = "review_received"
	TransitionCommentReceived TransitionKind = "comment_received"
	TransitionCheckChanged    TransitionKind = "check_changed"
	TransitionMergeReady      TransitionKind = "merge_ready"
)

// Transition is one discrete observed change. Each transition becomes
// exactly one event; a poll that detects a new review and a failed check
// produces two transitions, never one batched change.
type Transition struct {
	Kind    TransitionKind
	From    types.ResourceState // state_changed only
	To      types.ResourceState // state_changed only
	Review  *types.Review       // review_received only
	Comment *types.Comment      // comment_received only
	Check   *types.Check        // check_changed only
}

// diff computes the discrete transitions from prev to cur. Reviews and
// comments are diffed by identity set (ids never seen before); checks by
// (id, status) pair, so re-polling an unchanged failure raises nothing.
// A nil prev means the first poll: state and merge-readiness are baselined
// silently, but existing reviews, comments, and non-pending checks are
// reported so a session starting mid-flight still sees them.
func diff(prev, cur *types.ResourceStatus) []Transition {
	var out []Transition

	if prev != nil && prev.State != cur.State {
		out = append(out, Transition{Kind: TransitionStateChanged, From: prev.State, To: cur.State})
	}

	seenReviews := make(map[string]bool)
	seenComments := make(map[string]bool)
	prevChecks := make(map[string]types.CheckStatus)
	if prev != nil {
		for _, r := range prev.Reviews {
			seenReviews[r.ID] = true
		}
		for _, c := range prev.Comments {
			seenComments[c.ID] = true
		}
		for _, c := range prev.Checks {
			prevChecks[c.ID] = c.Status
		}
	}

	for i := range cur.Reviews {
		if !seenReviews[cur.Reviews[i].ID] {
			out = append(out, Transition{Kind: TransitionReviewReceived, Review: &cur.Reviews[i]})
		}
	}
	for i := range cur.Comments {
		if !seenComments[cur.Comments[i].ID] {
			out = append(out, Transition{Kind: TransitionCommentReceived, Comment: &cur.Comments[i]})
		}
	}
	for i := range cur.Checks {
		check := &cur.Checks[i]
		last, known := prevChecks[check.ID]
		if known && last == check.Status {
			continue
		}
		if !known && prev == nil && (check.Status == types.CheckQueued || check.Status == types.CheckRunning) {
			// Baseline poll: pending checks will report when they complete.
			continue
		}
		out = append(out, Transition{Kind: TransitionCheckChanged, Check: check})
	}

	// Merge readiness is edge-triggered: raised only when the new snapshot
	// is ready and the previous one was not. A snapshot that is already
	// ready on the baseline poll is recorded silently, like state.
	if prev != nil && cur.MergeReady() && !prev.MergeReady() {
		out = append(out, Transition{Kind: TransitionMergeReady})
	}

	return out
}
