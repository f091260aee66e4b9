package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Woffluon/Voxel-Forge/internal/config"
	"github.com/Woffluon/Voxel-Forge/internal/gemini"
	"github.com/Woffluon/Voxel-Forge/internal/model"
)

type fakeGenerator struct {
	imageCalls int
	sceneCalls int

	imageResult *gemini.ImageResult
	imageErr    error

	sceneResult *gemini.SceneResult
	sceneErr    error

	lastPrompt      string
	lastAspectRatio string
	lastMimeType    string
}

func (f *fakeGenerator) GenerateImage(ctx context.Context, prompt, aspectRatio string) (*gemini.ImageResult, error) {
	f.imageCalls++
	f.lastPrompt = prompt
	f.lastAspectRatio = aspectRatio
	return f.imageResult, f.imageErr
}

func (f *fakeGenerator) GenerateScene(ctx context.Context, imageBase64, mimeType, prompt string) (*gemini.SceneResult, error) {
	f.sceneCalls++
	f.lastMimeType = mimeType
	f.lastPrompt = prompt
	return f.sceneResult, f.sceneErr
}

func testConfig() *config.Config {
	return &config.Config{
		Gemini: config.GeminiConfig{
			APIKey:       "test-key",
			ImageTimeout: 5 * time.Second,
			VoxelTimeout: 5 * time.Second,
		},
		Generation: config.GenerationConfig{
			ImagePromptMaxLen: 500,
			VoxelPromptMaxLen: 2000,
			MaxImagePayload:   15_000_000,
		},
		RateLimit: config.RateLimitConfig{
			ImageMaxRequests: 5,
			ImageWindow:      time.Minute,
			VoxelMaxRequests: 3,
			VoxelWindow:      time.Minute,
		},
	}
}

func testRouter(cfg *config.Config, backend Generator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.HandleMethodNotAllowed = true

	h := NewGenerateHandler(cfg, backend)
	router.POST("/api/generate-image", h.GenerateImage)
	router.POST("/api/generate-voxel", h.GenerateVoxel)
	return router
}

func post(router *gin.Engine, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		json.NewEncoder(&buf).Encode(b)
	}

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) model.ErrorResponse {
	t.Helper()
	var resp model.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestGenerateImageSuccess(t *testing.T) {
	backend := &fakeGenerator{imageResult: &gemini.ImageResult{Data: "AAAA", MimeType: "image/png"}}
	router := testRouter(testConfig(), backend)

	w := post(router, "/api/generate-image", model.GenerateImageRequest{Prompt: "a cat", AspectRatio: "16:9"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp model.GenerateImageResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Data != "AAAA" || resp.MimeType != "image/png" {
		t.Errorf("resp = %+v", resp)
	}
	if backend.lastAspectRatio != "16:9" {
		t.Errorf("aspect ratio = %q", backend.lastAspectRatio)
	}
}

func TestGenerateImageSanitizesAndDefaults(t *testing.T) {
	backend := &fakeGenerator{imageResult: &gemini.ImageResult{Data: "AAAA", MimeType: "image/png"}}
	router := testRouter(testConfig(), backend)

	w := post(router, "/api/generate-image", model.GenerateImageRequest{Prompt: "<b>a cat</b>", AspectRatio: "7:3"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if backend.lastPrompt != "ba cat/b" {
		t.Errorf("prompt = %q, want angle brackets stripped", backend.lastPrompt)
	}
	if backend.lastAspectRatio != "1:1" {
		t.Errorf("aspect ratio = %q, want 1:1 default", backend.lastAspectRatio)
	}
}

func TestGenerateImageMissingCredential(t *testing.T) {
	cfg := testConfig()
	cfg.Gemini.APIKey = ""
	backend := &fakeGenerator{}
	router := testRouter(cfg, backend)

	w := post(router, "/api/generate-image", model.GenerateImageRequest{Prompt: "a cat"}, nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	if resp := errorBody(t, w); resp.Error != "Missing GEMINI_API_KEY" {
		t.Errorf("error = %q", resp.Error)
	}
	if backend.imageCalls != 0 {
		t.Error("credential check must run before the backend call")
	}
}

func TestGenerateImageInvalidPrompts(t *testing.T) {
	tests := []struct {
		name string
		body interface{}
	}{
		{"malformed json", "{not json"},
		{"empty prompt", model.GenerateImageRequest{Prompt: "  "}},
		{"too short", model.GenerateImageRequest{Prompt: "hi"}},
		{"too long", model.GenerateImageRequest{Prompt: strings.Repeat("a", 501)}},
		{"script injection", model.GenerateImageRequest{Prompt: "<script>alert(1)</script>"}},
		{"event handler", model.GenerateImageRequest{Prompt: "x onload=evil"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeGenerator{}
			router := testRouter(testConfig(), backend)

			w := post(router, "/api/generate-image", tt.body, nil)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			if backend.imageCalls != 0 {
				t.Error("invalid input must not reach the backend")
			}
		})
	}
}

func TestGenerateImageRateLimit(t *testing.T) {
	backend := &fakeGenerator{imageResult: &gemini.ImageResult{Data: "AAAA", MimeType: "image/png"}}
	router := testRouter(testConfig(), backend)

	headers := map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}
	for i := 0; i < 5; i++ {
		if w := post(router, "/api/generate-image", model.GenerateImageRequest{Prompt: "a cat"}, headers); w.Code != http.StatusOK {
			t.Fatalf("call %d: status = %d", i+1, w.Code)
		}
	}

	w := post(router, "/api/generate-image", model.GenerateImageRequest{Prompt: "a cat"}, headers)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("6th call: status = %d, want 429", w.Code)
	}
	resp := errorBody(t, w)
	if !strings.HasPrefix(resp.Error, "Rate limit exceeded. Please wait ") {
		t.Errorf("error = %q", resp.Error)
	}
	if backend.imageCalls != 5 {
		t.Errorf("backend calls = %d, want 5", backend.imageCalls)
	}

	// A different forwarded address has its own window.
	other := map[string]string{"X-Forwarded-For": "198.51.100.9"}
	if w := post(router, "/api/generate-image", model.GenerateImageRequest{Prompt: "a cat"}, other); w.Code != http.StatusOK {
		t.Errorf("other client: status = %d", w.Code)
	}
}

func TestGenerateImageEmptyUpstream(t *testing.T) {
	backend := &fakeGenerator{imageErr: gemini.ErrEmptyResponse}
	router := testRouter(testConfig(), backend)

	w := post(router, "/api/generate-image", model.GenerateImageRequest{Prompt: "a cat"}, nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	if resp := errorBody(t, w); resp.Error != "No image generated" {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestGenerateImageBackendFailureIsGeneric(t *testing.T) {
	backend := &fakeGenerator{imageErr: errors.New("credential leaked: hunter2")}
	router := testRouter(testConfig(), backend)

	w := post(router, "/api/generate-image", model.GenerateImageRequest{Prompt: "a cat"}, nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	resp := errorBody(t, w)
	if resp.Error != "Internal Server Error" {
		t.Errorf("error = %q, raw detail must never reach the caller", resp.Error)
	}
}

func TestGenerateImageMethodNotAllowed(t *testing.T) {
	router := testRouter(testConfig(), &fakeGenerator{})

	req := httptest.NewRequest(http.MethodGet, "/api/generate-image", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}

func TestGenerateVoxelSuccess(t *testing.T) {
	backend := &fakeGenerator{sceneResult: &gemini.SceneResult{
		HTML:     "<!DOCTYPE html><html></html>",
		Thoughts: []string{"**Plan**"},
	}}
	router := testRouter(testConfig(), backend)

	w := post(router, "/api/generate-voxel", model.GenerateVoxelRequest{
		ImageBase64: "QUFBQQ==",
		MimeType:    "image/png",
		Prompt:      "voxelize this image",
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp model.GenerateVoxelResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.HTML != "<!DOCTYPE html><html></html>" {
		t.Errorf("html = %q", resp.HTML)
	}
	if len(resp.Thoughts) != 1 {
		t.Errorf("thoughts = %v", resp.Thoughts)
	}
	if resp.RequestID == "" || w.Header().Get("X-Request-Id") != resp.RequestID {
		t.Errorf("request id missing or mismatched: %q vs header %q", resp.RequestID, w.Header().Get("X-Request-Id"))
	}
	if backend.lastMimeType != "image/png" {
		t.Errorf("mime = %q", backend.lastMimeType)
	}
}

func TestGenerateVoxelEchoesRequestID(t *testing.T) {
	backend := &fakeGenerator{sceneResult: &gemini.SceneResult{HTML: "<html></html>"}}
	router := testRouter(testConfig(), backend)

	w := post(router, "/api/generate-voxel", model.GenerateVoxelRequest{
		ImageBase64: "QUFBQQ==", Prompt: "voxelize",
	}, map[string]string{"X-Request-Id": "vf_caller_supplied"})

	var resp model.GenerateVoxelResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.RequestID != "vf_caller_supplied" {
		t.Errorf("request id = %q, want caller's id echoed", resp.RequestID)
	}
}

func TestGenerateVoxelInvalidRequests(t *testing.T) {
	tests := []struct {
		name      string
		body      interface{}
		wantCode  int
		wantError string
	}{
		{"malformed json", "{oops", http.StatusBadRequest, "Invalid JSON"},
		{"missing image", model.GenerateVoxelRequest{Prompt: "voxelize"}, http.StatusBadRequest, "Invalid request"},
		{"missing prompt", model.GenerateVoxelRequest{ImageBase64: "QUFBQQ=="}, http.StatusBadRequest, "Invalid request"},
		{"prompt too long", model.GenerateVoxelRequest{
			ImageBase64: "QUFBQQ==", Prompt: strings.Repeat("a", 2001),
		}, http.StatusBadRequest, "Invalid request"},
		{"multibyte prompt over the rune limit", model.GenerateVoxelRequest{
			ImageBase64: "QUFBQQ==", Prompt: strings.Repeat("é", 2001),
		}, http.StatusBadRequest, "Invalid request"},
		{"payload too large", model.GenerateVoxelRequest{
			ImageBase64: strings.Repeat("A", 15_000_001), Prompt: "voxelize",
		}, http.StatusRequestEntityTooLarge, "Payload too large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeGenerator{}
			router := testRouter(testConfig(), backend)

			w := post(router, "/api/generate-voxel", tt.body, nil)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if resp := errorBody(t, w); resp.Error != tt.wantError {
				t.Errorf("error = %q, want %q", resp.Error, tt.wantError)
			}
			if backend.sceneCalls != 0 {
				t.Error("invalid input must not reach the backend")
			}
		})
	}
}

func TestGenerateVoxelMimeDefaulting(t *testing.T) {
	backend := &fakeGenerator{sceneResult: &gemini.SceneResult{HTML: "<html></html>"}}
	router := testRouter(testConfig(), backend)

	w := post(router, "/api/generate-voxel", model.GenerateVoxelRequest{
		ImageBase64: "QUFBQQ==", MimeType: "application/x-evil", Prompt: "voxelize",
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if backend.lastMimeType != "image/jpeg" {
		t.Errorf("mime = %q, want silent image/jpeg default", backend.lastMimeType)
	}
}

func TestGenerateVoxelMultibytePromptAtRuneLimit(t *testing.T) {
	backend := &fakeGenerator{sceneResult: &gemini.SceneResult{HTML: "<html></html>"}}
	router := testRouter(testConfig(), backend)

	// 2000 runes, twice that in bytes; the rune count is what is capped.
	w := post(router, "/api/generate-voxel", model.GenerateVoxelRequest{
		ImageBase64: "QUFBQQ==", Prompt: strings.Repeat("é", 2000),
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestGenerateVoxelRateLimit(t *testing.T) {
	backend := &fakeGenerator{sceneResult: &gemini.SceneResult{HTML: "<html></html>"}}
	router := testRouter(testConfig(), backend)

	body := model.GenerateVoxelRequest{ImageBase64: "QUFBQQ==", Prompt: "voxelize"}
	for i := 0; i < 3; i++ {
		if w := post(router, "/api/generate-voxel", body, nil); w.Code != http.StatusOK {
			t.Fatalf("call %d: status = %d", i+1, w.Code)
		}
	}

	w := post(router, "/api/generate-voxel", body, nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("4th call: status = %d, want 429", w.Code)
	}
	if backend.sceneCalls != 3 {
		t.Errorf("backend calls = %d, want 3", backend.sceneCalls)
	}
}

func TestGenerateVoxelEmptyUpstream(t *testing.T) {
	backend := &fakeGenerator{sceneErr: gemini.ErrEmptyResponse}
	router := testRouter(testConfig(), backend)

	w := post(router, "/api/generate-voxel", model.GenerateVoxelRequest{
		ImageBase64: "QUFBQQ==", Prompt: "voxelize",
	}, nil)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	if resp := errorBody(t, w); resp.Error != "Upstream response contained no HTML" {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestGenerateVoxelStreaming(t *testing.T) {
	backend := &fakeGenerator{sceneResult: &gemini.SceneResult{
		HTML:     "<html></html>",
		Thoughts: []string{"**Plan**", "**Build**"},
	}}
	router := testRouter(testConfig(), backend)

	w := post(router, "/api/generate-voxel", model.GenerateVoxelRequest{
		ImageBase64: "QUFBQQ==", Prompt: "voxelize",
	}, map[string]string{"Accept": "text/event-stream"})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	body := w.Body.String()
	thoughtIdx := strings.Index(body, "event: thought")
	sceneIdx := strings.Index(body, "event: scene")
	if thoughtIdx < 0 || sceneIdx < 0 {
		t.Fatalf("missing events in stream:\n%s", body)
	}
	if thoughtIdx > sceneIdx {
		t.Error("thought events must precede the scene event")
	}
	if strings.Count(body, "event: thought") != 2 {
		t.Errorf("want one event per thought:\n%s", body)
	}
	if !strings.Contains(body, "[DONE]") {
		t.Error("stream should be terminated")
	}
}

func TestClientAddr(t *testing.T) {
	tests := []struct {
		name       string
		forwarded  string
		remoteAddr string
		want       string
	}{
		{"forwarded single", "203.0.113.7", "10.0.0.1:1234", "203.0.113.7"},
		{"forwarded list takes first", "203.0.113.7, 10.0.0.1", "10.0.0.2:9", "203.0.113.7"},
		{"forwarded with spaces", "  203.0.113.7 ,10.0.0.1", "10.0.0.2:9", "203.0.113.7"},
		{"no forwarded header", "", "192.0.2.4:5678", "192.0.2.4"},
		{"remote without port", "", "192.0.2.4", "192.0.2.4"},
		{"nothing available", "", "", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if got := clientAddr(r); got != tt.want {
				t.Errorf("clientAddr() = %q, want %q", got, tt.want)
			}
		})
	}
}
