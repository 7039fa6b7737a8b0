package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jwebster45206/worldgen/pkg/chat"
)

type ErrorHandlingMode string

const ErrorHandlingExit ErrorHandlingMode = "exit"
const ErrorHandlingContinue ErrorHandlingMode = "continue"

// Runner executes integration tests against a running worldgen API
type Runner struct {
	BaseURL           string
	Client            *http.Client
	Timeout           time.Duration
	Logger            func(format string, args ...interface{})
	ErrorHandlingMode ErrorHandlingMode
	GenreOverride     string // If set, overrides the genre for all test cases
}

// NewRunner creates a new test runner
func NewRunner(baseURL string) *Runner {
	return &Runner{
		BaseURL:           strings.TrimSuffix(baseURL, "/"),
		Client:            &http.Client{Timeout: 120 * time.Second},
		Timeout:           90 * time.Second,
		Logger:            func(string, ...interface{}) {},
		ErrorHandlingMode: ErrorHandlingContinue,
	}
}

// LoadTestSuite loads a test suite from a JSON file
func LoadTestSuite(filename string) (TestSuite, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return TestSuite{}, fmt.Errorf("failed to read test file %s: %w", filename, err)
	}

	var suite TestSuite
	if err := json.Unmarshal(content, &suite); err != nil {
		return TestSuite{}, fmt.Errorf("failed to parse JSON in %s: %w", filename, err)
	}

	return suite, nil
}

// LoadTestSuiteWithExpansion loads a test suite and expands it if it's a sequence
func LoadTestSuiteWithExpansion(filename string, casesDir string) ([]TestJob, error) {
	suite, err := LoadTestSuite(filename)
	if err != nil {
		return nil, err
	}

	if !suite.IsSequence() {
		return []TestJob{{
			Name:     suite.Name,
			Suite:    suite,
			CaseFile: filename,
		}}, nil
	}

	var jobs []TestJob
	for _, caseFile := range suite.Cases {
		casePath := filepath.Join(casesDir, caseFile)

		subJobs, err := LoadTestSuiteWithExpansion(casePath, casesDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load case '%s' referenced by sequence '%s': %w", caseFile, suite.Name, err)
		}

		jobs = append(jobs, subJobs...)
	}

	return jobs, nil
}

// RunSuite generates the suite's world and then plays every step in the
// resulting session.
func (r *Runner) RunSuite(ctx context.Context, suite TestSuite) (TestRunResult, error) {
	start := time.Now()
	result := TestRunResult{
		Job: TestJob{
			Name:  suite.Name,
			Suite: suite,
		},
		Results: make([]TestResult, 0, len(suite.Steps)),
	}

	genre := suite.Genre
	if r.GenreOverride != "" {
		genre = r.GenreOverride
	}

	sessionID, err := r.generateWorld(ctx, genre, suite.Prompt, suite.World)
	if err != nil {
		result.Error = fmt.Errorf("failed to generate world: %w", err)
		result.Duration = time.Since(start)
		return result, result.Error
	}
	result.SessionID = sessionID

	for i, step := range suite.Steps {
		r.Logger("    [%d/%d] Running step: %s", i+1, len(suite.Steps), step.Name)

		var stepResult TestResult
		if step.UserPrompt == ResetSessionPrompt {
			stepResult, sessionID = r.resetSession(ctx, sessionID, genre, suite, step)
			result.SessionID = sessionID
		} else {
			stepResult = r.runStep(ctx, sessionID, step)
		}
		stepResult.TestName = suite.Name
		result.Results = append(result.Results, stepResult)

		if !stepResult.Success && r.ErrorHandlingMode == ErrorHandlingExit {
			result.Error = fmt.Errorf("step '%s' failed: %w", step.Name, stepResult.Error)
			break
		}
	}

	if result.Error == nil {
		for _, sr := range result.Results {
			if !sr.Success {
				result.Error = fmt.Errorf("step '%s' failed: %w", sr.StepName, sr.Error)
				break
			}
		}
	}

	result.Duration = time.Since(start)
	return result, result.Error
}

func (r *Runner) generateWorld(ctx context.Context, genre, prompt string, exp Expectations) (string, error) {
	var world chat.WorldResponse
	status, err := r.call(ctx, http.MethodPost, "/generate-world", chat.WorldRequest{Genre: genre, Prompt: prompt}, &world)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("generate-world returned status %d", status)
	}
	if err := r.checkExpectations(ctx, exp, world.SessionID, status, world.Content); err != nil {
		return "", fmt.Errorf("world expectation failed: %w", err)
	}
	return world.SessionID, nil
}

func (r *Runner) resetSession(ctx context.Context, sessionID, genre string, suite TestSuite, step TestStep) (TestResult, string) {
	start := time.Now()
	result := TestResult{StepName: step.Name, IsReset: true, ResponseText: "[SESSION RESET]"}

	if _, err := r.call(ctx, http.MethodDelete, "/sessions/"+sessionID, nil, nil); err != nil {
		result.Error = fmt.Errorf("failed to delete session: %w", err)
		result.Duration = time.Since(start)
		return result, sessionID
	}

	newID, err := r.generateWorld(ctx, genre, suite.Prompt, step.Expectations)
	if err != nil {
		result.Error = fmt.Errorf("failed to regenerate world: %w", err)
		result.Duration = time.Since(start)
		return result, sessionID
	}

	result.Success = true
	result.Duration = time.Since(start)
	return result, newID
}

// runStep sends one chat turn and checks expectations
func (r *Runner) runStep(ctx context.Context, sessionID string, step TestStep) TestResult {
	start := time.Now()
	result := TestResult{
		StepName: step.Name,
	}

	stepCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	role := step.Role
	if role == "" {
		role = chat.ChatRoleUser
	}

	req := chat.ChatRequest{
		SessionID: sessionID,
		Messages:  []chat.ChatMessage{{Role: role, Content: step.UserPrompt}},
	}
	var reply chat.ChatResponse
	status, err := r.call(stepCtx, http.MethodPost, "/chat", req, &reply)
	if err != nil {
		result.Error = fmt.Errorf("failed to post chat: %w", err)
		result.Duration = time.Since(start)
		return result
	}
	result.ResponseText = reply.Content

	if err := r.checkExpectations(stepCtx, step.Expectations, sessionID, status, reply.Content); err != nil {
		result.Error = fmt.Errorf("expectation failed: %w", err)
		result.Duration = time.Since(start)
		return result
	}

	result.Success = true
	result.Duration = time.Since(start)
	return result
}

// call sends a JSON request and decodes a 2xx JSON reply into out.
// Non-2xx replies are returned as a status without an error.
func (r *Runner) call(ctx context.Context, method, path string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.BaseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 300 || out == nil || len(respBody) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to parse response: %w", err)
	}
	return resp.StatusCode, nil
}

func (r *Runner) sessionLength(ctx context.Context, sessionID string) (int, error) {
	var session chat.SessionResponse
	status, err := r.call(ctx, http.MethodGet, "/sessions/"+sessionID, nil, &session)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("get session returned status %d", status)
	}
	return len(session.Messages), nil
}

// checkExpectations validates the expectations against the response and session
func (r *Runner) checkExpectations(ctx context.Context, exp Expectations, sessionID string, status int, responseText string) error {
	wantStatus := http.StatusOK
	if exp.Status != nil {
		wantStatus = *exp.Status
	}
	if status != wantStatus {
		return fmt.Errorf("expected status %d, got %d", wantStatus, status)
	}

	if exp.HistoryLength != nil {
		n, err := r.sessionLength(ctx, sessionID)
		if err != nil {
			return err
		}
		if n != *exp.HistoryLength {
			return fmt.Errorf("expected %d session messages, got %d", *exp.HistoryLength, n)
		}
	}

	// Response content checks
	lowerResponse := strings.ToLower(responseText)
	for _, expectedText := range exp.ResponseContains {
		if !strings.Contains(lowerResponse, strings.ToLower(expectedText)) {
			return fmt.Errorf("expected response to contain '%s', but it didn't", expectedText)
		}
	}
	for _, unexpectedText := range exp.ResponseNotContains {
		if strings.Contains(lowerResponse, strings.ToLower(unexpectedText)) {
			return fmt.Errorf("expected response to NOT contain '%s', but it did", unexpectedText)
		}
	}

	if exp.ResponseRegex != "" {
		matched, err := regexp.MatchString(exp.ResponseRegex, responseText)
		if err != nil {
			return fmt.Errorf("invalid regex pattern: %w", err)
		}
		if !matched {
			return fmt.Errorf("response didn't match regex pattern: %s", exp.ResponseRegex)
		}
	}

	length := utf8.RuneCountInString(responseText)
	if exp.ResponseMinLength != nil && length < *exp.ResponseMinLength {
		return fmt.Errorf("expected response length >= %d, got %d", *exp.ResponseMinLength, length)
	}
	if exp.ResponseMaxLength != nil && length > *exp.ResponseMaxLength {
		return fmt.Errorf("expected response length <= %d, got %d", *exp.ResponseMaxLength, length)
	}

	return nil
}
