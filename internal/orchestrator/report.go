package orchestrator

import (
	"fmt"
	"io"
	"strings"

	"github.com/lucasnoah/issuesmith/internal/pipeline"
)

// Report is what the operator receives when a run stops: enough state to
// resume by hand.
type Report struct {
	RunID            string                `json:"run_id"`
	IssueID          string                `json:"issue_id"`
	Phase            pipeline.Phase        `json:"phase"`
	SubState         string                `json:"sub_state,omitempty"`
	LastGoodPhase    pipeline.Phase        `json:"last_good_phase,omitempty"`
	Cause            string                `json:"cause,omitempty"`
	Trace            []pipeline.TraceEntry `json:"trace"`
	ManualSteps      []string              `json:"manual_steps,omitempty"`
	ChangeRequestURL string                `json:"change_request_url,omitempty"`
	Run              *pipeline.Run         `json:"run,omitempty"`
}

// NewReport builds the report of a stored run.
func NewReport(r *pipeline.Run) *Report {
	return newReport(r)
}

func newReport(r *pipeline.Run) *Report {
	rep := &Report{
		RunID:         r.ID,
		IssueID:       r.IssueID,
		Phase:         r.Phase,
		SubState:      r.SubState,
		LastGoodPhase: r.LastGoodPhase,
		Cause:         r.Cause,
		Trace:         append([]pipeline.TraceEntry(nil), r.Trace...),
		ManualSteps:   append([]string(nil), r.ManualSteps...),
		Run:           r,
	}
	if r.ChangeRequest != nil {
		rep.ChangeRequestURL = r.ChangeRequest.URL
	}
	return rep
}

// Write prints the report for a terminal.
func (rep *Report) Write(w io.Writer) {
	state := string(rep.Phase)
	if rep.SubState != "" {
		state += "/" + rep.SubState
	}
	fmt.Fprintf(w, "Issue #%s: %s (run %s)\n", rep.IssueID, state, rep.RunID)
	if rep.Phase == pipeline.Aborted {
		fmt.Fprintf(w, "  last good phase: %s\n", rep.LastGoodPhase)
	}
	if rep.Cause != "" {
		fmt.Fprintf(w, "  cause: %s\n", rep.Cause)
	}
	if rep.ChangeRequestURL != "" {
		fmt.Fprintf(w, "  change request: %s\n", rep.ChangeRequestURL)
	}

	fmt.Fprintln(w, "  trace:")
	for _, t := range rep.Trace {
		line := fmt.Sprintf("    %s  %s", t.At.Format("15:04:05"), t.To)
		if t.Note != "" {
			line += "  " + t.Note
		}
		fmt.Fprintln(w, line)
	}

	if len(rep.ManualSteps) > 0 {
		fmt.Fprintln(w, "\nRun these commands to finish:")
		for _, s := range rep.ManualSteps {
			fmt.Fprintln(w, s)
		}
	}
}

// String renders the report as Write does.
func (rep *Report) String() string {
	var b strings.Builder
	rep.Write(&b)
	return b.String()
}

// FatalError is returned when a run aborts. It carries the report.
type FatalError struct {
	Phase  pipeline.Phase
	Cause  error
	Report *Report
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("run aborted after %s: %v", e.Phase, e.Cause)
}

func (e *FatalError) Unwrap() error { return e.Cause }
