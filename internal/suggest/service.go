// Package suggest calls a Gemini-compatible text generation API to improve
// task descriptions and summarize tasks. The service is optional; when no
// API key is configured every call fails fast.
package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Config holds the generation API settings.
type Config struct {
	URL    string
	APIKey string
	Model  string
}

// Service provides text suggestions for tasks.
type Service struct {
	config Config
	client *http.Client
}

// NewService creates a suggestion service.
func NewService(config Config) *Service {
	if config.Model == "" {
		config.Model = "gemini-2.5-flash"
	}
	if config.URL == "" {
		config.URL = "https://generativelanguage.googleapis.com/v1beta"
	}
	return &Service{
		config: config,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// IsConfigured returns true if an API key is present.
func (s *Service) IsConfigured() bool {
	return s.config.APIKey != ""
}

// Improve rewrites a task description in the requested tone. Supported tones
// are "professional", "concise", and "detailed"; anything else keeps the text
// clear and neutral.
func (s *Service) Improve(ctx context.Context, text, tone string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("nothing to improve")
	}

	var instruction string
	switch tone {
	case "professional":
		instruction = "Rewrite the following task description in a professional tone."
	case "concise":
		instruction = "Rewrite the following task description to be as concise as possible without losing meaning."
	case "detailed":
		instruction = "Expand the following task description with helpful detail and acceptance criteria."
	default:
		instruction = "Rewrite the following task description to be clear and well structured."
	}

	prompt := instruction + " Return only the rewritten text.\n\n" + text
	return s.generate(ctx, prompt)
}

// Summarize produces a short summary of a task for notifications and exports.
func (s *Service) Summarize(ctx context.Context, title, description string) (string, error) {
	if strings.TrimSpace(title) == "" && strings.TrimSpace(description) == "" {
		return "", fmt.Errorf("nothing to summarize")
	}
	prompt := fmt.Sprintf(
		"Summarize this kanban task in one or two sentences. Return only the summary.\n\nTitle: %s\nDescription: %s",
		title, description)
	return s.generate(ctx, prompt)
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (s *Service) generate(ctx context.Context, prompt string) (string, error) {
	if !s.IsConfigured() {
		return "", fmt.Errorf("suggestions not configured")
	}

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(s.config.URL, "/"), s.config.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", s.config.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call generation api: %w", err)
	}
	defer resp.Body.Close()

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := resp.Status
		if decoded.Error != nil {
			msg = decoded.Error.Message
		}
		return "", fmt.Errorf("generation api: %s", msg)
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("generation api returned no candidates")
	}
	return strings.TrimSpace(decoded.Candidates[0].Content.Parts[0].Text), nil
}
