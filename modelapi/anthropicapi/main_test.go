package anthropicapi

import (
	"context"
	"os"
	"testing"
	"time"

	"mslcoach/logger"
	"mslcoach/modelapi"
)

func TestComplete(t *testing.T) {
	// Set the ANTHROPIC_API_KEY environment variable for testing
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		t.Skip("ANTHROPIC_API_KEY environment variable not set, skipping test")
	}

	// Create a logger
	logMiddleware := logger.Connect(logger.LoggerConnectProps{Production: false})

	// Create context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	// Connect to Anthropic API
	anthropic := Connect(ctx, AnthropicConnectProps{Logger: logMiddleware})

	// Call Complete with a minimal conversation
	response, err := anthropic.Complete(ctx, modelapi.CompletionInput{
		System: "You are a terse assistant. Answer in one sentence.",
		Messages: []modelapi.ChatMessage{
			{Role: modelapi.USER, Content: "Hello, how are you?"},
		},
		MaxTokens: 100,
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	// Basic validation
	if response == "" {
		t.Error("Expected non-empty response, got empty string")
	}

	t.Logf("Response received: %s", response)
}
