package plan

import (
	"errors"
	"reflect"
	"testing"
)

func TestNew(t *testing.T) {
	p := New([]string{"b.go", "a.go", "b.go", ""}, "gofmt", 0)
	if !reflect.DeepEqual(p.TargetFiles, []string{"a.go", "b.go"}) {
		t.Errorf("TargetFiles = %v", p.TargetFiles)
	}
	if p.ApprovalState != Proposed {
		t.Errorf("ApprovalState = %q, want proposed", p.ApprovalState)
	}
	if !errors.Is(p.RequireApproved(), ErrNotApproved) {
		t.Error("new plan passes RequireApproved")
	}
}

func TestApproveReject(t *testing.T) {
	p := New([]string{"a.go"}, "", 0)
	p.Reject("also touch b.go")
	if p.IsApproved() || len(p.Feedback) != 1 {
		t.Errorf("after Reject: %+v", p)
	}
	p.Approve()
	if err := p.RequireApproved(); err != nil {
		t.Errorf("RequireApproved after Approve: %v", err)
	}

	var nilPlan *Plan
	if nilPlan.IsApproved() {
		t.Error("nil plan reported approved")
	}
}
