// Package tagger assigns short topic tags to fine clusters by showing
// representative card images to a vision-capable language model.
package tagger

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ApplesHUFS/AAC-Software-sub001/internal/config"
)

// Sentinel errors for the external service contract.
var (
	ErrRateLimited = errors.New("vision service rate limited")
	ErrTimeout     = errors.New("vision service timeout")
)

// VisionClient describes a service that, given N card images and their
// labels, returns a short topic string for the set.
type VisionClient interface {
	Describe(ctx context.Context, images [][]byte, labels []string) (string, error)
}

// OpenAIClient implements VisionClient against an OpenAI-compatible
// chat-completions endpoint, sending images as base64 data URLs.
type OpenAIClient struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
}

var _ VisionClient = (*OpenAIClient)(nil)

const describePrompt = "These images are AAC communication cards from one topic group. " +
	"Their labels are: %s. Reply with a short topic tag (2-4 words) describing " +
	"what the group is about. Reply with the tag only."

// NewOpenAIClient builds a client from configuration. The API key is read
// from the environment variable named by cfg.APIKeyEnv.
func NewOpenAIClient(cfg *config.TaggerConfig) *OpenAIClient {
	return &OpenAIClient{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		apiKey:   os.Getenv(cfg.APIKeyEnv),
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

type chatContent struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []chatContent `json:"content"`
}

// Describe posts the images and labels and returns the model's topic tag.
// HTTP 429 maps to ErrRateLimited and a deadline/transport timeout to
// ErrTimeout so the pacer can classify them as transient.
func (c *OpenAIClient) Describe(ctx context.Context, images [][]byte, labels []string) (string, error) {
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", fmt.Errorf("vision client misconfigured")
	}
	if len(images) == 0 {
		return "", fmt.Errorf("no images to describe")
	}

	content := []chatContent{{
		Type: "text",
		Text: fmt.Sprintf(describePrompt, strings.Join(labels, ", ")),
	}}
	for _, img := range images {
		part := chatContent{Type: "image_url"}
		part.ImageURL = &struct {
			URL string `json:"url"`
		}{URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(img)}
		content = append(content, part)
	}

	body, err := json.Marshal(map[string]any{
		"model":    c.model,
		"messages": []chatMessage{{Role: "user", Content: content}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal vision payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeoutErr(err) {
			return "", fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return "", fmt.Errorf("vision request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", ErrRateLimited
	}
	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("vision service error %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode vision response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("vision response has no choices")
	}
	tag := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if tag == "" {
		return "", fmt.Errorf("vision response is empty")
	}
	return tag, nil
}

func isTimeoutErr(err error) bool {
	var timeout interface{ Timeout() bool }
	return errors.As(err, &timeout) && timeout.Timeout()
}
