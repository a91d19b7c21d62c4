// Package extract provides a client for the external metadata extraction
// service. Extraction is advisory: its suggestions pre-fill document
// metadata, the caller's explicit values always win, and a failed or slow
// extraction never blocks a document create.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Suggestion is the best-effort metadata the extraction service derived
// from a file's content. Empty fields mean no suggestion.
type Suggestion struct {
	// Name is the suggested document name.
	Name string

	// FileType is the suggested document type name.
	FileType string

	// DocumentDate is the suggested document date.
	DocumentDate *time.Time

	// Raw is the unparsed extraction payload, kept for diagnostics.
	Raw string
}

// extractResponse is the wire format of a successful extraction.
type extractResponse struct {
	ExtractedFeatures string `json:"extracted_features"`
	Error             string `json:"error"`
}

// features is the JSON document the extraction model is asked to produce.
type features struct {
	Date     string `json:"date"`
	Name     string `json:"name"`
	FileType string `json:"file-type"`
}

// Client calls the extraction service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a new extraction client.
func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With().Str("client", "extract").Logger(),
	}
}

// Extract submits file content for metadata extraction.
func (c *Client) Extract(ctx context.Context, filename string, content io.Reader) (*Suggestion, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to build extraction request: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("failed to buffer file content: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize extraction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to build extraction request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extraction request failed: %w", err)
	}
	defer resp.Body.Close()

	var payload extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode extraction response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("extraction service returned status %d: %s", resp.StatusCode, payload.Error)
	}

	return c.parseSuggestion(payload.ExtractedFeatures), nil
}

// parseSuggestion decodes the model output. The payload is free-form text
// that usually contains a JSON document; anything unparsable degrades to a
// raw-only suggestion rather than an error.
func (c *Client) parseSuggestion(raw string) *Suggestion {
	suggestion := &Suggestion{Raw: raw}

	var f features
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		c.logger.Debug().Err(err).Msg("extraction payload not parseable as JSON")
		return suggestion
	}

	suggestion.Name = f.Name
	suggestion.FileType = f.FileType
	if f.Date != "" {
		for _, layout := range []string{"2006-01-02", time.RFC3339, "02.01.2006", "01/02/2006"} {
			if t, err := time.Parse(layout, f.Date); err == nil {
				suggestion.DocumentDate = &t
				break
			}
		}
	}

	return suggestion
}
