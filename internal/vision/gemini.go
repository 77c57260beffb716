// Package vision – Gemini client
//
// This file implements Extractor against the Gemini REST API: a raw media
// upload (the file API is the only way to obtain a reusable URI from Gemini)
// followed by generateContent with a fixed instruction that asks for nothing
// but the number on the meter. The API key is injected at construction and
// sent via the x-goog-api-key header, never embedded in URLs.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	// Decoders for the image formats meters are photographed in.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

const (
	// DefaultBaseURL is the public Gemini API endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com"

	// DefaultModel is the generation model used for meter reading.
	DefaultModel = "gemini-1.5-flash"

	// readInstruction is the fixed prompt sent with every image.
	readInstruction = "Can you tell me what the reading on this meter says? Output just a number and nothing else."

	maxResponseBytes = 1 << 20
)

// GeminiConfig carries the process-wide settings for the Gemini client.
// It is built once at startup from the environment and injected; there is no
// package-level key state.
type GeminiConfig struct {
	// APIKey authenticates every request (GEMINI_API_KEY).
	APIKey string
	// Model overrides DefaultModel when non-empty.
	Model string
	// BaseURL overrides DefaultBaseURL when non-empty (tests point it at a
	// local httptest server).
	BaseURL string
	// HTTPClient overrides http.DefaultClient when non-nil. Per-call
	// deadlines come from the caller's context, not the client.
	HTTPClient *http.Client
}

// GeminiExtractor implements Extractor against the Gemini REST API.
type GeminiExtractor struct {
	cfg    GeminiConfig
	client *http.Client
}

// NewGeminiExtractor constructs a GeminiExtractor, applying defaults for
// model, base URL, and HTTP client.
func NewGeminiExtractor(cfg GeminiConfig) *GeminiExtractor {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	c := cfg.HTTPClient
	if c == nil {
		c = http.DefaultClient
	}
	return &GeminiExtractor{cfg: cfg, client: c}
}

// Extract validates that the bytes decode as an image, uploads them for a
// durable URI, asks the model for the reading, and parses the reply strictly
// as a base-10 integer.
//
// Failure modes map onto the package sentinels:
//   - undecodable bytes or a failed upload → ErrInvalidImage
//   - non-integer model output → ErrInvalidResult (Reading.ImageURL is set)
//   - context deadline expiry at any step → ErrTimeout
func (g *GeminiExtractor) Extract(ctx context.Context, img []byte) (Reading, error) {
	mime, err := sniffImage(img)
	if err != nil {
		return Reading{}, err
	}

	uri, err := g.upload(ctx, img, mime)
	if err != nil {
		return Reading{}, err
	}

	text, err := g.generate(ctx, uri, mime)
	if err != nil {
		// The upload already happened; report the URI with the failure.
		return Reading{ImageURL: uri}, err
	}

	value, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil {
		return Reading{ImageURL: uri}, fmt.Errorf("%w: model returned %q", ErrInvalidResult, strings.TrimSpace(text))
	}
	return Reading{ImageURL: uri, Value: value}, nil
}

// sniffImage verifies the payload is a decodable image and returns its MIME
// type. DecodeConfig reads only the header, so arbitrarily large payloads are
// cheap to check.
func sniffImage(img []byte) (string, error) {
	if len(img) == 0 {
		return "", fmt.Errorf("%w: empty payload", ErrInvalidImage)
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return "image/" + format, nil
}

// uploadResponse mirrors the subset of the file API response we consume.
type uploadResponse struct {
	File struct {
		Name string `json:"name"`
		URI  string `json:"uri"`
	} `json:"file"`
}

// upload pushes the raw image bytes through the Gemini media endpoint and
// returns the durable file URI.
func (g *GeminiExtractor) upload(ctx context.Context, img []byte, mime string) (string, error) {
	url := g.cfg.BaseURL + "/upload/v1beta/files"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(img))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	req.Header.Set("x-goog-api-key", g.cfg.APIKey)
	req.Header.Set("X-Goog-Upload-Protocol", "raw")
	req.Header.Set("Content-Type", mime)

	body, err := g.do(req)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			return "", err
		}
		return "", fmt.Errorf("%w: upload failed: %v", ErrInvalidImage, err)
	}

	var out uploadResponse
	if err := json.Unmarshal(body, &out); err != nil || out.File.URI == "" {
		return "", fmt.Errorf("%w: upload returned no file uri", ErrInvalidImage)
	}
	return out.File.URI, nil
}

// generateRequest / generateResponse mirror the generateContent wire shapes.
type generateRequest struct {
	Contents []struct {
		Parts []json.RawMessage `json:"parts"`
	} `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// generate invokes the model with the uploaded file plus the fixed reading
// instruction and returns the concatenated text of the first candidate.
func (g *GeminiExtractor) generate(ctx context.Context, fileURI, mime string) (string, error) {
	filePart, _ := json.Marshal(map[string]any{
		"file_data": map[string]string{"mime_type": mime, "file_uri": fileURI},
	})
	textPart, _ := json.Marshal(map[string]string{"text": readInstruction})

	var payload generateRequest
	payload.Contents = []struct {
		Parts []json.RawMessage `json:"parts"`
	}{{Parts: []json.RawMessage{filePart, textPart}}}

	buf, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.cfg.BaseURL, g.cfg.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return "", err
	}
	req.Header.Set("x-goog-api-key", g.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	body, err := g.do(req)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			return "", err
		}
		return "", fmt.Errorf("%w: model call failed: %v", ErrInvalidResult, err)
	}

	var out generateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("%w: malformed model response", ErrInvalidResult)
	}
	if len(out.Candidates) == 0 {
		return "", fmt.Errorf("%w: model returned no candidates", ErrInvalidResult)
	}
	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}

// do executes a request, translating deadline expiry into ErrTimeout and
// non-2xx statuses into plain errors for the caller to classify.
func (g *GeminiExtractor) do(req *http.Request) ([]byte, error) {
	resp, err := g.client.Do(req)
	if err != nil {
		if isDeadline(err) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if isDeadline(err) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncateBody(body))
	}
	return body, nil
}

// isDeadline reports whether err stems from a context deadline or a network
// timeout.
func isDeadline(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// truncateBody keeps error messages readable when the API returns HTML or a
// long JSON error document.
func truncateBody(b []byte) string {
	const max = 256
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		return s[:max] + "…"
	}
	return s
}
