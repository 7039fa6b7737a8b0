package services

import (
	"context"
	"errors"
	"testing"

	"github.com/jwebster45206/worldgen/pkg/chat"
)

func TestMockLLMService(t *testing.T) {
	mockService := NewMockLLMAPI()

	err := mockService.InitModel(context.Background(), "test-model")
	if err != nil {
		t.Errorf("InitModel failed: %v", err)
	}

	messages := []chat.ChatMessage{
		{Role: chat.ChatRoleUser, Content: "Hello"},
	}

	reply, err := mockService.Complete(context.Background(), messages)
	if err != nil {
		t.Errorf("Complete failed: %v", err)
	}
	if reply != "Echo: Hello" {
		t.Errorf("Expected 'Echo: Hello', got '%s'", reply)
	}

	initCalls, completeCalls := mockService.GetCalls()
	if len(initCalls) != 1 || initCalls[0] != "test-model" {
		t.Errorf("Expected one InitModel call for test-model, got %v", initCalls)
	}
	if len(completeCalls) != 1 {
		t.Fatalf("Expected 1 Complete call, got %d", len(completeCalls))
	}
	if completeCalls[0].Messages[0].Content != "Hello" {
		t.Errorf("Expected recorded message 'Hello', got '%s'", completeCalls[0].Messages[0].Content)
	}
}

func TestMockLLMService_ErrorHandling(t *testing.T) {
	mockService := NewMockLLMAPI()

	expectedErr := errors.New("initialization failed")
	mockService.SetInitModelError(expectedErr)
	if err := mockService.InitModel(context.Background(), "test-model"); !errors.Is(err, expectedErr) {
		t.Errorf("Expected %v, got %v", expectedErr, err)
	}

	mockService.SetCompleteError(ErrLLMGateway)
	_, err := mockService.Complete(context.Background(), []chat.ChatMessage{{Role: chat.ChatRoleUser, Content: "hi"}})
	if !errors.Is(err, ErrLLMGateway) {
		t.Errorf("Expected ErrLLMGateway, got %v", err)
	}
}

func TestMockLLMService_Reset(t *testing.T) {
	mockService := NewMockLLMAPI()
	mockService.SetCompleteResponse("fixed")

	reply, _ := mockService.Complete(context.Background(), nil)
	if reply != "fixed" {
		t.Errorf("Expected 'fixed', got '%s'", reply)
	}

	mockService.Reset()
	_, calls := mockService.GetCalls()
	if len(calls) != 0 {
		t.Errorf("Expected no calls after reset, got %d", len(calls))
	}
}
