// Package gemini is a minimal REST client for the generateContent API,
// covering the two calls this service makes: text-to-image generation
// and image-to-scene voxelization.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Woffluon/Voxel-Forge/internal/config"
	"github.com/Woffluon/Voxel-Forge/internal/utils"
)

type Client struct {
	httpClient *http.Client
	cfg        config.GeminiConfig
}

func NewClient(cfg config.GeminiConfig) *Client {
	return &Client{
		httpClient: utils.NewHTTPClient(),
		cfg:        cfg,
	}
}

// API request/response shapes (minimal for our use)
type generateContentRequest struct {
	Contents []content         `json:"contents"`
	Config   *generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string     `json:"responseModalities,omitempty"`
	ImageConfig        *imageConfig `json:"imageConfig,omitempty"`
}

type imageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	Thought    bool        `json:"thought,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// ImageResult is the first inline-data part of an image generation.
type ImageResult struct {
	Data     string
	MimeType string
}

// SceneResult is the text payload of a voxelization call: the scene
// markup (all non-thought text parts joined) plus any thought fragments
// the model emitted along the way, in order.
type SceneResult struct {
	HTML     string
	Thoughts []string
}

func (c *Client) generate(ctx context.Context, model string, req generateContentRequest) (*generateContentResponse, error) {
	if c.cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.cfg.BaseURL, model, c.cfg.APIKey)

	b, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(data)}
	}

	var gcr generateContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&gcr); err != nil {
		return nil, &APIError{Message: "decode response", Err: err}
	}
	return &gcr, nil
}

// GenerateImage produces an image for the prompt. The prompt must
// already be validated and sanitized by the caller.
func (c *Client) GenerateImage(ctx context.Context, prompt, aspectRatio string) (*ImageResult, error) {
	gcr, err := c.generate(ctx, c.cfg.ImageModel, generateContentRequest{
		Contents: []content{{
			Parts: []part{{Text: prompt}},
		}},
		Config: &generationConfig{
			ResponseModalities: []string{"IMAGE"},
			ImageConfig:        &imageConfig{AspectRatio: aspectRatio},
		},
	})
	if err != nil {
		return nil, err
	}

	for _, cand := range gcr.Candidates {
		for _, p := range cand.Content.Parts {
			if p.InlineData != nil && p.InlineData.Data != "" {
				mime := p.InlineData.MimeType
				if mime == "" {
					mime = "image/png"
				}
				return &ImageResult{Data: p.InlineData.Data, MimeType: mime}, nil
			}
		}
	}
	return nil, ErrEmptyResponse
}

// GenerateScene turns an image into scene markup. Thought parts are
// collected separately so the handler can forward them incrementally.
func (c *Client) GenerateScene(ctx context.Context, imageBase64, mimeType, prompt string) (*SceneResult, error) {
	gcr, err := c.generate(ctx, c.cfg.VoxelModel, generateContentRequest{
		Contents: []content{{
			Parts: []part{
				{InlineData: &inlineData{MimeType: mimeType, Data: imageBase64}},
				{Text: prompt},
			},
		}},
	})
	if err != nil {
		return nil, err
	}

	if len(gcr.Candidates) == 0 {
		return nil, ErrEmptyResponse
	}

	var html bytes.Buffer
	var thoughts []string
	for _, p := range gcr.Candidates[0].Content.Parts {
		if p.Text == "" {
			continue
		}
		if p.Thought {
			thoughts = append(thoughts, p.Text)
			continue
		}
		html.WriteString(p.Text)
	}

	if strings.TrimSpace(html.String()) == "" {
		return nil, ErrEmptyResponse
	}
	return &SceneResult{HTML: html.String(), Thoughts: thoughts}, nil
}
