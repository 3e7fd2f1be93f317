package httpmiddleware

import (
	"fmt"
	"io"
	"net/http"
	"time"
)

type HttpRequestStruct struct {
	Method  string
	Url     string
	Body    io.Reader
	Headers map[string]string
	Timeout time.Duration
}

// HttpRequest performs one HTTP round trip and returns the raw response body.
// Non-2xx statuses are returned as errors so callers can run their own retry
// loops without inspecting the response.
func HttpRequest(args HttpRequestStruct) ([]byte, error) {
	timeout := args.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	client := &http.Client{Timeout: timeout}

	req, err := http.NewRequest(args.Method, args.Url, args.Body)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}

	for key, value := range args.Headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("request returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}
