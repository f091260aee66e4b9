package handler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Woffluon/Voxel-Forge/internal/config"
	"github.com/Woffluon/Voxel-Forge/internal/gemini"
	"github.com/Woffluon/Voxel-Forge/internal/model"
	"github.com/Woffluon/Voxel-Forge/internal/ratelimit"
	"github.com/Woffluon/Voxel-Forge/internal/utils"
	"github.com/Woffluon/Voxel-Forge/internal/validate"
	"github.com/Woffluon/Voxel-Forge/pkg/logger"
)

// Generator is the backend capability the handlers forward to.
// *gemini.Client satisfies it.
type Generator interface {
	GenerateImage(ctx context.Context, prompt, aspectRatio string) (*gemini.ImageResult, error)
	GenerateScene(ctx context.Context, imageBase64, mimeType, prompt string) (*gemini.SceneResult, error)
}

// GenerateHandler re-validates and re-rate-limits every request before
// it reaches the backend. Client-side checks improve UX but are
// bypassable; this is the enforcement boundary.
type GenerateHandler struct {
	cfg     *config.Config
	backend Generator

	imageLimiter *ratelimit.Limiter
	voxelLimiter *ratelimit.Limiter
}

func NewGenerateHandler(cfg *config.Config, backend Generator) *GenerateHandler {
	return &GenerateHandler{
		cfg:          cfg,
		backend:      backend,
		imageLimiter: ratelimit.New(cfg.RateLimit.ImageMaxRequests, cfg.RateLimit.ImageWindow),
		voxelLimiter: ratelimit.New(cfg.RateLimit.VoxelMaxRequests, cfg.RateLimit.VoxelWindow),
	}
}

func (h *GenerateHandler) GenerateImage(c *gin.Context) {
	if h.cfg.Gemini.APIKey == "" {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Missing GEMINI_API_KEY"})
		return
	}

	addr := clientAddr(c.Request)
	if d := h.imageLimiter.Admit(addr); !d.Allowed {
		c.JSON(http.StatusTooManyRequests, model.ErrorResponse{
			Error: fmt.Sprintf("Rate limit exceeded. Please wait %d seconds.", ratelimit.RetryAfterSeconds(d.RetryAfter)),
		})
		return
	}

	var req model.GenerateImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid prompt"})
		return
	}

	if err := validate.Prompt(req.Prompt, h.cfg.Generation.ImagePromptMaxLen); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid prompt"})
		return
	}

	prompt := validate.SanitizePrompt(req.Prompt)
	aspectRatio := validate.SafeAspectRatio(req.AspectRatio)

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.cfg.Gemini.ImageTimeout)
	defer cancel()

	result, err := h.backend.GenerateImage(ctx, prompt, aspectRatio)
	if err != nil {
		logger.Fields(map[string]interface{}{"client": addr}).Errorf("generate-image failed: %v", err)
		if errors.Is(err, gemini.ErrEmptyResponse) {
			c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "No image generated"})
			return
		}
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Internal Server Error"})
		return
	}

	c.JSON(http.StatusOK, model.GenerateImageResponse{
		Data:     result.Data,
		MimeType: result.MimeType,
	})
}

func (h *GenerateHandler) GenerateVoxel(c *gin.Context) {
	requestID := strings.TrimSpace(c.GetHeader("X-Request-Id"))
	if requestID == "" {
		requestID = "vf_" + uuid.NewString()
	}
	c.Header("X-Request-Id", requestID)

	if h.cfg.Gemini.APIKey == "" {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Missing GEMINI_API_KEY", RequestID: requestID})
		return
	}

	addr := clientAddr(c.Request)
	if d := h.voxelLimiter.Admit(addr); !d.Allowed {
		c.JSON(http.StatusTooManyRequests, model.ErrorResponse{
			Error:     fmt.Sprintf("Rate limit exceeded. Please wait %d seconds.", ratelimit.RetryAfterSeconds(d.RetryAfter)),
			RequestID: requestID,
		})
		return
	}

	var req model.GenerateVoxelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid JSON", RequestID: requestID})
		return
	}

	prompt := strings.TrimSpace(req.Prompt)
	if req.ImageBase64 == "" || prompt == "" || utf8.RuneCountInString(prompt) > h.cfg.Generation.VoxelPromptMaxLen {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", RequestID: requestID})
		return
	}

	if err := validate.PayloadSize(req.ImageBase64, h.cfg.Generation.MaxImagePayload); err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, model.ErrorResponse{Error: "Payload too large", RequestID: requestID})
		return
	}

	mimeType := validate.SafeMimeType(req.MimeType)

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.cfg.Gemini.VoxelTimeout)
	defer cancel()

	result, err := h.backend.GenerateScene(ctx, req.ImageBase64, mimeType, prompt)
	if err != nil {
		logger.Fields(map[string]interface{}{
			"request_id": requestID,
			"client":     addr,
		}).Errorf("generate-voxel failed: %v", err)
		if errors.Is(err, gemini.ErrEmptyResponse) {
			c.JSON(http.StatusBadGateway, model.ErrorResponse{Error: "Upstream response contained no HTML", RequestID: requestID})
			return
		}
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Internal Server Error", RequestID: requestID})
		return
	}

	if strings.Contains(c.GetHeader("Accept"), "text/event-stream") {
		h.streamVoxel(c, requestID, result)
		return
	}

	c.JSON(http.StatusOK, model.GenerateVoxelResponse{
		HTML:      result.HTML,
		Thoughts:  result.Thoughts,
		RequestID: requestID,
	})
}

// streamVoxel delivers the result over SSE: one thought event per
// commentary fragment, then a single scene event with the markup.
func (h *GenerateHandler) streamVoxel(c *gin.Context, requestID string, result *gemini.SceneResult) {
	sse := utils.NewSSEWriter(c.Writer)

	for _, thought := range result.Thoughts {
		if err := sse.WriteJSON("thought", gin.H{"thought": thought, "requestId": requestID}); err != nil {
			logger.Warnf("sse thought write failed: %v", err)
			return
		}
	}

	if err := sse.WriteJSON("scene", model.GenerateVoxelResponse{HTML: result.HTML, RequestID: requestID}); err != nil {
		logger.Errorf("sse scene write failed: %v", err)
		return
	}
	sse.Close()
}

// clientAddr derives the rate-limiter key: first forwarded-for value,
// else the transport peer address, else the literal "unknown".
func clientAddr(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); strings.TrimSpace(xf) != "" {
		first := strings.TrimSpace(strings.Split(xf, ",")[0])
		if first != "" {
			return first
		}
	}
	if r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return host
		}
		return r.RemoteAddr
	}
	return "unknown"
}
