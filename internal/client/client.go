// Package client is the Go consumer of the two generation endpoints.
// Every outbound call passes through the same governance the browser
// build applies: a per-endpoint sliding-window rate limiter, a bounded
// call with cancellation, and typed error classification. Calls are
// never retried here; retry policy belongs to the caller, and none is
// applied anywhere in this system.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Woffluon/Voxel-Forge/internal/model"
	"github.com/Woffluon/Voxel-Forge/internal/ratelimit"
	"github.com/Woffluon/Voxel-Forge/internal/utils"
)

const (
	// ImageSystemPrompt is prepended to user prompts when optimization
	// is on, steering the model toward voxelizable output.
	ImageSystemPrompt = "Generate an isolated object/scene on a simple background."
	// VoxelPrompt is the fixed internal prompt for scene synthesis.
	VoxelPrompt = "I have provided an image. Code a beautiful voxel art scene inspired by this image. Write threejs code as a single-page."

	imageTimeout = 120 * time.Second
	voxelTimeout = 180 * time.Second
)

type Client struct {
	baseURL    string
	httpClient *http.Client

	imageLimiter *ratelimit.Limiter
	voxelLimiter *ratelimit.Limiter
}

func New(baseURL string) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   utils.NewHTTPClient(),
		imageLimiter: ratelimit.New(5, time.Minute),
		voxelLimiter: ratelimit.New(3, time.Minute),
	}
}

// GenerateImage submits a validated, sanitized prompt and returns the
// produced image as a data: URL.
func (c *Client) GenerateImage(ctx context.Context, prompt, aspectRatio string, optimize bool) (string, error) {
	if d := c.imageLimiter.Admit("generate-image"); !d.Allowed {
		return "", &APIError{
			Status:  http.StatusTooManyRequests,
			Message: fmt.Sprintf("Rate limit exceeded. Please wait %d seconds.", ratelimit.RetryAfterSeconds(d.RetryAfter)),
		}
	}

	finalPrompt := prompt
	if optimize {
		finalPrompt = fmt.Sprintf("%s\n\nSubject: %s", ImageSystemPrompt, prompt)
	}

	var resp model.GenerateImageResponse
	err := c.postJSON(ctx, "/api/generate-image", model.GenerateImageRequest{
		Prompt:      finalPrompt,
		AspectRatio: aspectRatio,
	}, &resp, imageTimeout)
	if err != nil {
		return "", err
	}

	if resp.Data == "" {
		return "", errors.New("No image generated.")
	}

	mimeType := resp.MimeType
	if mimeType == "" {
		mimeType = "image/png"
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, resp.Data), nil
}

// GenerateVoxelScene converts an image (data: URL or bare base64) into
// scene markup. Thought fragments from the backend are replayed through
// onThought in order before the markup is returned.
func (c *Client) GenerateVoxelScene(ctx context.Context, imageData string, onThought func(string)) (string, error) {
	base64Data := imageData
	mimeType := "image/jpeg"
	if i := strings.Index(imageData, ","); i >= 0 && strings.HasPrefix(imageData, "data:") {
		base64Data = imageData[i+1:]
		meta := imageData[len("data:"):i]
		if j := strings.Index(meta, ";"); j >= 0 {
			mimeType = meta[:j]
		} else if meta != "" {
			mimeType = meta
		}
	}

	if d := c.voxelLimiter.Admit("generate-voxel"); !d.Allowed {
		return "", &APIError{
			Status:  http.StatusTooManyRequests,
			Message: fmt.Sprintf("Rate limit exceeded. Please wait %d seconds.", ratelimit.RetryAfterSeconds(d.RetryAfter)),
		}
	}

	var resp model.GenerateVoxelResponse
	err := c.postJSON(ctx, "/api/generate-voxel", model.GenerateVoxelRequest{
		ImageBase64: base64Data,
		MimeType:    mimeType,
		Prompt:      VoxelPrompt,
	}, &resp, voxelTimeout)
	if err != nil {
		return "", err
	}

	if onThought != nil {
		for _, thought := range resp.Thoughts {
			onThought(thought)
		}
	}

	return utils.ExtractHTML(resp.HTML), nil
}

// postJSON issues one bounded call. The deadline timer is tied to the
// derived context and always released on return. A deadline firing is
// classified as a 408 timeout, distinct from generic transport failure.
// Exactly one attempt per invocation.
func (c *Client) postJSON(ctx context.Context, path string, payload, out interface{}, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return asTimeout(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Message: parseErrorBody(resp)}
	}

	// The deadline can also fire mid-body, after 2xx headers arrived.
	// That stall is still a timeout, not a decode failure.
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return asTimeout(ctx, err)
	}
	return nil
}

// asTimeout maps a deadline expiry, wherever it surfaced, to the 408
// APIError; any other error passes through unchanged.
func asTimeout(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return &APIError{Status: http.StatusRequestTimeout, Message: "Request timed out. Please try again."}
	}
	return err
}

// parseErrorBody normalizes backend error bodies, whose shape varies:
// structured JSON with an "error" or "message" field first, then plain
// text, then the transport status phrase.
func parseErrorBody(resp *http.Response) string {
	raw, err := io.ReadAll(resp.Body)
	if err == nil && strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var payload struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &payload) == nil {
			if payload.Error != "" {
				return payload.Error
			}
			if payload.Message != "" {
				return payload.Message
			}
		}
	}

	if err == nil {
		if text := strings.TrimSpace(string(raw)); text != "" {
			return text
		}
	}

	if phrase := http.StatusText(resp.StatusCode); phrase != "" {
		return phrase
	}
	return "Request failed"
}
