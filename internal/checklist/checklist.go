// Package checklist implements C11: grading PRD checklist items against
// concrete, language-neutral verification checks and atomically persisting
// the results. Verification outcomes are informational — this package
// never returns an error that should abort a caller's run.
package checklist

import "time"

// Status is a checklist item's (or a single check's) verification state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusFailing  Status = "failing"
)

// CheckResult mirrors Status but at the single-check granularity; a
// checklist item status is derived by folding its check results together.
type CheckResult string

const (
	ResultPass    CheckResult = "pass"
	ResultFail    CheckResult = "fail"
	ResultPending CheckResult = "pending"
)

// CheckKind enumerates the verification primitives a checklist item can use.
type CheckKind string

const (
	CheckFileExists    CheckKind = "file_exists"
	CheckFileContains  CheckKind = "file_contains"
	CheckTestsPass     CheckKind = "tests_pass"
	CheckCommand       CheckKind = "command"
	CheckGrepCodebase  CheckKind = "grep_codebase"
	CheckHTTP          CheckKind = "http_check"
)

// Priority is the human-authored urgency of a checklist item.
type Priority string

const (
	PriorityMajor Priority = "major"
	PriorityMinor Priority = "minor"
)

// Verification is one concrete check attached to a checklist item.
type Verification struct {
	Type           CheckKind `json:"type"`
	Path           string    `json:"path,omitempty"`
	Pattern        string    `json:"pattern,omitempty"`
	Cmd            []string  `json:"cmd,omitempty"`
	ExpectedStatus int       `json:"expected_status,omitempty"`
}

// Item is one checklist entry, identified by ID, graded by its list of
// Verification checks.
type Item struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Priority     Priority       `json:"priority"`
	Verification []Verification `json:"verification"`
	Status       Status         `json:"status"`
	VerifiedAt   *time.Time     `json:"verified_at,omitempty"`
}

// Checklist is the full, human-authored-then-machine-updated set of items
// for one project.
type Checklist struct {
	Items []Item `json:"items"`
}

// ItemResult is the per-item outcome of one verification pass, including
// every individual check's result — the compact summary persisted
// alongside the updated checklist.
type ItemResult struct {
	ItemID  string        `json:"item_id"`
	Status  Status        `json:"status"`
	Checks  []CheckOutcome `json:"checks"`
}

// CheckOutcome records one Verification's graded result.
type CheckOutcome struct {
	Type   CheckKind   `json:"type"`
	Result CheckResult `json:"result"`
	Detail string      `json:"detail,omitempty"`
}

// Summary is the atomically-written `verification-results.json` contract.
type Summary struct {
	RunAt   time.Time    `json:"run_at"`
	Results []ItemResult `json:"results"`
}

// itemStatus folds a set of check outcomes into the item-level status:
// verified only if every check passed, failing if any explicit fail was
// observed, pending otherwise (including a mix of pass and pending).
func itemStatus(outcomes []CheckOutcome) Status {
	sawPending := false
	for _, o := range outcomes {
		switch o.Result {
		case ResultFail:
			return StatusFailing
		case ResultPending:
			sawPending = true
		}
	}
	if sawPending {
		return StatusPending
	}
	return StatusVerified
}
