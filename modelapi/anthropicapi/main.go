package anthropicapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"mslcoach/httpmiddleware"
	"mslcoach/logger"
	"mslcoach/modelapi"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	MODEL_NAME        = "claude-sonnet-4-20250514"
	ANTHROPIC_VERSION = "2023-06-01"
)

type MessagesRequestInput struct {
	Model       string                 `json:"model"`
	MaxTokens   int                    `json:"max_tokens"`
	System      string                 `json:"system,omitempty"`
	Messages    []modelapi.ChatMessage `json:"messages"`
	Temperature *float64               `json:"temperature,omitempty"`
}

type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type MessagesResponse struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Role       string         `json:"role"`
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
}

type AnthropicConnectProps struct {
	Logger *logger.LogMiddleware
}

type Anthropic struct {
	logger    *logger.LogMiddleware
	semaphore *semaphore.Weighted
}

func Connect(ctx context.Context, args AnthropicConnectProps) *Anthropic {
	tracer := otel.Tracer("anthropicapi/Connect")
	ctx, span := tracer.Start(ctx, "Connect")
	defer span.End()

	maxWorkers := 10
	sem := semaphore.NewWeighted(int64(maxWorkers))

	span.SetAttributes(attribute.Int("maxWorkers", maxWorkers))

	return &Anthropic{logger: args.Logger, semaphore: sem}
}

type MakeAPIRequestProps struct {
	Retries      int
	RequestInput MessagesRequestInput
}

// Used for retry logic.
func GetExponentialDelaySeconds(retryNumber int) int {
	delayTime := int(5 * math.Pow(2, float64(retryNumber)))
	return delayTime
}

func (a *Anthropic) MakeAPIRequest(ctx context.Context, args MakeAPIRequestProps) (*MessagesResponse, error) {
	tracer := otel.Tracer("anthropicapi/MakeAPIRequest")
	ctx, span := tracer.Start(ctx, "MakeAPIRequest")
	defer span.End()

	API_KEY := os.Getenv("ANTHROPIC_API_KEY")
	URL := "https://api.anthropic.com/v1/messages"

	span.SetAttributes(
		attribute.String("api.url", URL),
		attribute.Int("request.max_tokens", args.RequestInput.MaxTokens),
		attribute.String("request.model", args.RequestInput.Model),
	)

	requestInput := args.RequestInput
	retries := args.Retries
	originalRetries := args.Retries

	jsonData, err := json.Marshal(requestInput)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("could not generate request body: %w", err)
	}

	span.SetAttributes(attribute.Int("retries", retries))

	for retries > 0 {
		sleepTime := GetExponentialDelaySeconds(originalRetries - retries)
		span.SetAttributes(attribute.Int("sleep_time", sleepTime))

		if err := a.semaphore.Acquire(ctx, 1); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to acquire semaphore: %w", err)
		}

		respBody, err := httpmiddleware.HttpRequest(httpmiddleware.HttpRequestStruct{
			Method: "POST",
			Url:    URL,
			Body:   bytes.NewBuffer(jsonData),
			Headers: map[string]string{
				"x-api-key":         API_KEY,
				"anthropic-version": ANTHROPIC_VERSION,
				"content-type":      "application/json",
			},
		})
		a.semaphore.Release(1)

		if err != nil {
			span.RecordError(err)
			a.logger.Logger(ctx).Error(
				"[Anthropic-API] Could not make request to Anthropic. Retrying after sleeping.",
				zap.Error(err),
				zap.Int("retries_left", retries),
				zap.Int("sleep_time", sleepTime),
			)
			retries -= 1
			if retries == 0 {
				break
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(sleepTime) * time.Second):
			}
		} else {
			var messageResponse MessagesResponse
			err = json.Unmarshal(respBody, &messageResponse)
			if err != nil || len(messageResponse.Content) == 0 {
				span.RecordError(err)
				retries -= 1
				a.logger.Logger(ctx).Error(
					"[Anthropic-API] Could not parse Anthropic response. Retrying after sleeping.",
					zap.Int("retries_left", retries),
					zap.Int("sleep_time", sleepTime),
					zap.Error(err),
					zap.String("response_body", string(respBody)),
					zap.Int("content_length", len(messageResponse.Content)),
				)
				if retries == 0 {
					break
				}
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(time.Duration(sleepTime) * time.Second):
				}
			} else {
				span.AddEvent("Request successful")
				return &messageResponse, nil
			}
		}
	}

	span.AddEvent("All retries exhausted")
	return nil, fmt.Errorf("anthropic requests failed")
}

// Complete runs one chat completion against the Anthropic Messages API.
func (a *Anthropic) Complete(ctx context.Context, input modelapi.CompletionInput) (string, error) {
	tracer := otel.Tracer("anthropicapi/Complete")
	ctx, span := tracer.Start(ctx, "Complete")
	defer span.End()

	span.SetAttributes(
		attribute.Int("messages.count", len(input.Messages)),
		attribute.Int("request.max_tokens", input.MaxTokens),
	)

	requestInput := MessagesRequestInput{
		Model:     MODEL_NAME,
		MaxTokens: input.MaxTokens,
		System:    input.System,
		Messages:  input.Messages,
	}
	if input.Temperature > 0 {
		requestInput.Temperature = &input.Temperature
	}

	resp, err := a.MakeAPIRequest(ctx, MakeAPIRequestProps{
		Retries:      3,
		RequestInput: requestInput,
	})
	if err != nil {
		return "", err
	}

	if len(resp.Content) == 0 || len(resp.Content[0].Text) == 0 {
		return "", fmt.Errorf("no response received")
	}

	return resp.Content[0].Text, nil
}
