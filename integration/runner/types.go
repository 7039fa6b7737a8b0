package runner

import (
	"time"
)

// Special user prompt values that trigger non-chat actions
const (
	ResetSessionPrompt = "RESET_SESSION"
)

// TestSuite defines a complete integration test scenario
// Can either be a regular test with Steps, or a suite that references other Cases
type TestSuite struct {
	Name   string       `json:"name"`
	Genre  string       `json:"genre,omitempty"`  // Used for regular tests
	Prompt string       `json:"prompt,omitempty"` // Seed prompt; empty draws one from the genre
	World  Expectations `json:"expect_world,omitempty"`
	Steps  []TestStep   `json:"steps,omitempty"` // Used for regular tests
	Cases  []string     `json:"cases,omitempty"` // Used for suite tests (list of case files)
}

// IsSequence returns true if this is a suite that sequences other cases
func (ts *TestSuite) IsSequence() bool {
	return len(ts.Cases) > 0
}

// TestStep defines a single chat turn and its expected outcomes
// Use user_prompt: "RESET_SESSION" to drop the session and generate a fresh world
type TestStep struct {
	Name         string       `json:"name,omitempty"`
	UserPrompt   string       `json:"user_prompt"`
	Role         string       `json:"role,omitempty"` // defaults to "user"
	Expectations Expectations `json:"expect"`
}

// Expectations defines what to check after a test step executes
type Expectations struct {
	Status        *int `json:"status,omitempty"`         // HTTP status of the call, default 200
	HistoryLength *int `json:"history_length,omitempty"` // Session messages after the step

	// Response Analysis
	ResponseContains    []string `json:"response_contains,omitempty"`
	ResponseNotContains []string `json:"response_not_contains,omitempty"`
	ResponseRegex       string   `json:"response_regex,omitempty"`
	ResponseMinLength   *int     `json:"response_min_length,omitempty"` // in characters
	ResponseMaxLength   *int     `json:"response_max_length,omitempty"` // in characters
}

// TestResult contains the outcome of running a test step
type TestResult struct {
	TestName     string
	StepName     string
	Success      bool
	Error        error
	Duration     time.Duration
	ResponseText string
	IsReset      bool // True if this was a RESET_SESSION step (should not count toward pass/fail metrics)
}

// TestJob represents a test suite to be executed
type TestJob struct {
	Name     string
	Suite    TestSuite
	CaseFile string
}

// TestRunResult contains the results of running an entire test suite
type TestRunResult struct {
	Job       TestJob
	Results   []TestResult
	SessionID string
	Duration  time.Duration
	Error     error
}
