package types

import "testing"

func TestResourceStatusMergeReady(t *testing.T) {
	tests := []struct {
		name   string
		status ResourceStatus
		want   bool
	}{
		{
			name: "open mergeable approved green",
			status: ResourceStatus{
				State:     ResourceOpen,
				Mergeable: true,
				Reviews:   []Review{{ID: "r1", Verdict: ReviewApproved}},
				Checks:    []Check{{ID: "c1", Status: CheckPassed}},
			},
			want: true,
		},
		{
			name: "no checks still green",
			status: ResourceStatus{
				State:     ResourceOpen,
				Mergeable: true,
				Reviews:   []Review{{ID: "r1", Verdict: ReviewApproved}},
			},
			want: true,
		},
		{
			name: "changes requested blocks",
			status: ResourceStatus{
				State:     ResourceOpen,
				Mergeable: true,
				Reviews: []Review{
					{ID: "r1", Verdict: ReviewApproved},
					{ID: "r2", Verdict: ReviewChangesRequested},
				},
				Checks: []Check{{ID: "c1", Status: CheckPassed}},
			},
			want: false,
		},
		{
			name: "no approving review blocks",
			status: ResourceStatus{
				State:     ResourceOpen,
				Mergeable: true,
				Reviews:   []Review{{ID: "r1", Verdict: ReviewCommented}},
				Checks:    []Check{{ID: "c1", Status: CheckPassed}},
			},
			want: false,
		},
		{
			name: "running check blocks",
			status: ResourceStatus{
				State:     ResourceOpen,
				Mergeable: true,
				Reviews:   []Review{{ID: "r1", Verdict: ReviewApproved}},
				Checks: []Check{
					{ID: "c1", Status: CheckPassed},
					{ID: "c2", Status: CheckRunning},
				},
			},
			want: false,
		},
		{
			name: "failed check blocks",
			status: ResourceStatus{
				State:     ResourceOpen,
				Mergeable: true,
				Reviews:   []Review{{ID: "r1", Verdict: ReviewApproved}},
				Checks:    []Check{{ID: "c1", Status: CheckFailed}},
			},
			want: false,
		},
		{
			name: "not mergeable blocks",
			status: ResourceStatus{
				State:     ResourceOpen,
				Mergeable: false,
				Reviews:   []Review{{ID: "r1", Verdict: ReviewApproved}},
			},
			want: false,
		},
		{
			name: "merged resource is not ready",
			status: ResourceStatus{
				State:     ResourceMerged,
				Mergeable: true,
				Reviews:   []Review{{ID: "r1", Verdict: ReviewApproved}},
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.MergeReady(); got != tt.want {
				t.Errorf("MergeReady() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResourceStateTerminal(t *testing.T) {
	if ResourceOpen.Terminal() || ResourceDraft.Terminal() {
		t.Error("open and draft are not terminal")
	}
	if !ResourceMerged.Terminal() || !ResourceClosed.Terminal() {
		t.Error("merged and closed are terminal")
	}
}
