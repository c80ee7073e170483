package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiTimeout = 30 * time.Second
)

// GeminiClient talks to the Gemini generateContent REST API.
type GeminiClient struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

func NewGemini(baseURL, apiKey, model string, timeout time.Duration) *GeminiClient {
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	if timeout <= 0 {
		timeout = defaultGeminiTimeout
	}
	return &GeminiClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		http:    &http.Client{Timeout: timeout},
	}
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (c *GeminiClient) Generate(ctx context.Context, prompt string) (GeneratedText, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	})
	if err != nil {
		return GeneratedText{}, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return GeneratedText{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil || isTimeout(err) {
			return GeneratedText{}, fmt.Errorf("%w: %v", ErrCollaboratorTimeout, err)
		}
		return GeneratedText{}, fmt.Errorf("calling generator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return GeneratedText{}, ErrQuotaExceeded
	}
	if resp.StatusCode != http.StatusOK {
		return GeneratedText{}, fmt.Errorf("generator returned status %d", resp.StatusCode)
	}

	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return GeneratedText{}, fmt.Errorf("decoding response: %w", err)
	}
	if len(out.Candidates) == 0 {
		return GeneratedText{}, ErrEmptyResponse
	}

	parts := out.Candidates[0].Content.Parts
	switch len(parts) {
	case 0:
		return GeneratedText{}, ErrEmptyResponse
	case 1:
		return GeneratedText{Kind: KindPlain, Text: parts[0].Text}, nil
	default:
		texts := make([]string, len(parts))
		for i, p := range parts {
			texts[i] = p.Text
		}
		return GeneratedText{Kind: KindParts, Parts: texts}, nil
	}
}

func isTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
