package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jwebster45206/worldgen/pkg/chat"
	"github.com/jwebster45206/worldgen/pkg/prompts"
)

// APIError is the error envelope returned by the API.
type APIError struct {
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Detail)
}

// APIClient is a thin HTTP client for the worldgen API.
type APIClient struct {
	baseURL string
	client  *http.Client
}

func NewAPIClient(baseURL string, client *http.Client) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (a *APIClient) Healthy() bool {
	resp, err := a.client.Get(a.baseURL + "/health")
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()
	return resp.StatusCode == http.StatusOK
}

func (a *APIClient) ListGenres() ([]prompts.Genre, error) {
	var genres []prompts.Genre
	if err := a.do(http.MethodGet, "/genres", nil, http.StatusOK, &genres); err != nil {
		return nil, fmt.Errorf("failed to list genres: %w", err)
	}
	return genres, nil
}

func (a *APIClient) GenerateWorld(genre, prompt string) (*chat.WorldResponse, error) {
	var world chat.WorldResponse
	req := chat.WorldRequest{Genre: genre, Prompt: prompt}
	if err := a.do(http.MethodPost, "/generate-world", req, http.StatusOK, &world); err != nil {
		return nil, fmt.Errorf("failed to generate world: %w", err)
	}
	return &world, nil
}

func (a *APIClient) Chat(sessionID, message string) (*chat.ChatResponse, error) {
	req := chat.ChatRequest{
		SessionID: sessionID,
		Messages:  []chat.ChatMessage{{Role: chat.ChatRoleUser, Content: message}},
	}
	var reply chat.ChatResponse
	if err := a.do(http.MethodPost, "/chat", req, http.StatusOK, &reply); err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}
	return &reply, nil
}

func (a *APIClient) GetSession(sessionID string) (*chat.SessionResponse, error) {
	var session chat.SessionResponse
	if err := a.do(http.MethodGet, "/sessions/"+sessionID, nil, http.StatusOK, &session); err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

func (a *APIClient) DeleteSession(sessionID string) error {
	if err := a.do(http.MethodDelete, "/sessions/"+sessionID, nil, http.StatusNoContent, nil); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (a *APIClient) do(method, path string, in any, wantStatus int, out any) error {
	var body io.Reader
	if in != nil {
		jsonData, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, a.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != wantStatus {
		var apiErr APIError
		if err := json.Unmarshal(respBody, &apiErr); err != nil || apiErr.Detail == "" {
			return &APIError{Status: resp.StatusCode, Detail: strings.TrimSpace(string(respBody))}
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
