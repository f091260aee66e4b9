// Package service owns the generation state machine. All state lives in
// the Controller and is mutated only through its transition methods;
// the guards here, not UI affordances, are what serialize access — at
// most one generation is in flight at any time.
package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/Woffluon/Voxel-Forge/internal/client"
	"github.com/Woffluon/Voxel-Forge/internal/model"
	"github.com/Woffluon/Voxel-Forge/internal/storage"
	"github.com/Woffluon/Voxel-Forge/internal/validate"
	"github.com/Woffluon/Voxel-Forge/pkg/logger"
)

var (
	// ErrBusy means a start transition was attempted while a generation
	// is in flight. The attempt is a no-op: state is untouched and no
	// call is issued.
	ErrBusy = errors.New("a generation is already in progress")
	// ErrNoImage means voxelization was requested with no image present.
	ErrNoImage = errors.New("no image to voxelize")
)

// Backend is the governed access path to the generation endpoints.
// *client.Client satisfies it.
type Backend interface {
	GenerateImage(ctx context.Context, prompt, aspectRatio string, optimize bool) (string, error)
	GenerateVoxelScene(ctx context.Context, imageData string, onThought func(string)) (string, error)
}

type Controller struct {
	mu sync.Mutex

	backend   Backend
	store     storage.Store
	sessionID string

	gen     model.GenerationState
	content model.ContentState
	user    *model.UserContent

	examples        []model.Example
	selectedExample int // -1 when no example tile is selected
	userSelected    bool

	aspectRatio string
	optimize    bool
}

func NewController(backend Backend, store storage.Store) *Controller {
	return &Controller{
		backend:         backend,
		store:           store,
		sessionID:       uuid.NewString(),
		gen:             model.GenerationState{Status: model.StatusIdle},
		content:         model.ContentState{ViewMode: model.ViewImage},
		examples:        DefaultExamples(),
		selectedExample: -1,
		aspectRatio:     validate.DefaultAspectRatio,
		optimize:        true,
	}
}

// Snapshot returns copies of both state records. Mutation only happens
// through transitions; nothing outside the controller holds a writable
// reference.
func (c *Controller) Snapshot() (model.GenerationState, model.ContentState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen, c.content
}

func (c *Controller) UserContent() *model.UserContent {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == nil {
		return nil
	}
	cp := *c.user
	return &cp
}

// Examples returns a copy of the catalog; the catalog itself never
// changes after construction.
func (c *Controller) Examples() []model.Example {
	out := make([]model.Example, len(c.examples))
	copy(out, c.examples)
	return out
}

func (c *Controller) SetAspectRatio(ratio string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aspectRatio = validate.SafeAspectRatio(ratio)
}

func (c *Controller) SetOptimize(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.optimize = on
}

// GenerateImage runs the idle -> generating_image -> idle/error workflow.
// Validation failures surface their message and never reach the network.
func (c *Controller) GenerateImage(ctx context.Context, prompt string) error {
	c.mu.Lock()
	if c.gen.Status.Busy() {
		c.mu.Unlock()
		return ErrBusy
	}

	if err := validate.Prompt(prompt, 500); err != nil {
		c.gen.Status = model.StatusError
		c.gen.ErrorMsg = err.Error()
		c.mu.Unlock()
		return err
	}

	sanitized := validate.SanitizePrompt(prompt)

	c.gen = model.GenerationState{Status: model.StatusGeneratingImage}
	// Stale content must never show under a new in-flight request.
	c.content.ImageData = ""
	c.content.VoxelCode = ""
	c.content.ViewMode = model.ViewImage
	aspectRatio, optimize := c.aspectRatio, c.optimize
	c.mu.Unlock()

	imageURL, err := c.backend.GenerateImage(ctx, sanitized, aspectRatio, optimize)
	if err != nil {
		c.fail(imageErrorMessage(err), err)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.content.ImageData = imageURL
	c.content.VoxelCode = ""
	c.content.VoxelURL = ""
	// A new image invalidates any scene derived from a previous one.
	c.user = &model.UserContent{
		ID:     uuid.NewString(),
		Image:  imageURL,
		Prompt: sanitized,
	}
	c.userSelected = true
	c.selectedExample = -1
	c.gen = model.GenerationState{Status: model.StatusIdle}

	if err := c.store.Save(c.sessionID, c.user); err != nil {
		logger.Warnf("failed to persist user content: %v", err)
	}
	return nil
}

// Voxelize runs the idle -> generating_voxels -> idle/error workflow over
// the currently displayed image.
func (c *Controller) Voxelize(ctx context.Context) error {
	c.mu.Lock()
	if c.gen.Status.Busy() {
		c.mu.Unlock()
		return ErrBusy
	}
	if c.content.ImageData == "" {
		c.mu.Unlock()
		return ErrNoImage
	}

	c.gen = model.GenerationState{Status: model.StatusGeneratingVoxels}
	c.content.VoxelCode = ""
	c.content.VoxelURL = ""
	imageData := c.content.ImageData
	c.mu.Unlock()

	tracker := &thoughtTracker{}
	code, err := c.backend.GenerateVoxelScene(ctx, imageData, func(fragment string) {
		if header, changed := tracker.Feed(fragment); changed {
			c.setThinking(header)
		}
	})
	if err != nil {
		c.fail(voxelErrorMessage(err), err)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.content.VoxelCode = code
	c.content.VoxelURL = ""
	c.content.ViewMode = model.ViewVoxel
	c.gen = model.GenerationState{Status: model.StatusIdle}

	if c.userSelected && c.user != nil {
		c.user.Voxel = code
		if err := c.store.Save(c.sessionID, c.user); err != nil {
			logger.Warnf("failed to persist user content: %v", err)
		}
	}
	return nil
}

// UploadImage accepts a user-supplied image as a data: URL and makes it
// the active user content.
func (c *Controller) UploadImage(imageDataURL string) error {
	mimeType := dataURLMime(imageDataURL)
	if !validate.AllowedMimeType(mimeType) {
		err := errors.New("Invalid file type. Please upload PNG, JPEG, WEBP, HEIC, or HEIF.")
		c.fail(err.Error(), err)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.user = &model.UserContent{
		ID:    uuid.NewString(),
		Image: imageDataURL,
	}
	c.content.ImageData = imageDataURL
	c.content.VoxelCode = ""
	c.content.ViewMode = model.ViewImage
	c.gen = model.GenerationState{Status: model.StatusIdle}
	c.userSelected = true
	c.selectedExample = -1

	if err := c.store.Save(c.sessionID, c.user); err != nil {
		logger.Warnf("failed to persist user content: %v", err)
	}
	return nil
}

// SelectExample shows a catalog entry's pre-built scene.
func (c *Controller) SelectExample(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen.Status.Busy() {
		return ErrBusy
	}
	if index < 0 || index >= len(c.examples) {
		return errors.New("example index out of range")
	}

	example := c.examples[index]
	c.selectedExample = index
	c.userSelected = false
	c.content.ImageData = example.ImageRef
	c.content.VoxelCode = ""
	c.content.VoxelURL = example.SceneRef
	c.content.ViewMode = model.ViewVoxel
	c.gen = model.GenerationState{Status: model.StatusIdle}
	return nil
}

// SelectUserContent restores the session's own generation result. The
// record is re-read from the store, which is authoritative; the in-memory
// copy only covers records whose save was lost.
func (c *Controller) SelectUserContent() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen.Status.Busy() {
		return ErrBusy
	}

	c.selectedExample = -1
	c.userSelected = true

	switch record, err := c.store.Get(c.sessionID); {
	case err == nil:
		c.user = record
	case !errors.Is(err, storage.ErrContentNotFound):
		return err
	}

	if c.user == nil {
		c.content = model.ContentState{ViewMode: model.ViewImage}
		return nil
	}

	c.content.ImageData = c.user.Image
	c.content.VoxelCode = c.user.Voxel
	c.content.VoxelURL = ""
	if c.user.Voxel != "" {
		c.content.ViewMode = model.ViewVoxel
	} else {
		c.content.ViewMode = model.ViewImage
	}
	return nil
}

// ToggleViewMode flips between image and scene views. The voxel view is
// only reachable once scene markup or a scene reference exists.
func (c *Controller) ToggleViewMode() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.content.ViewMode == model.ViewVoxel {
		c.content.ViewMode = model.ViewImage
		return
	}
	if c.content.VoxelCode != "" || c.content.VoxelURL != "" {
		c.content.ViewMode = model.ViewVoxel
	}
}

func (c *Controller) setThinking(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen.Status == model.StatusGeneratingVoxels {
		c.gen.ThinkingText = text
	}
}

// fail moves to the error state without touching content: a failed
// voxelization must not blank out the source image.
func (c *Controller) fail(msg string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen = model.GenerationState{Status: model.StatusError, ErrorMsg: msg}
	logger.Fields(map[string]interface{}{"session_id": c.sessionID}).Errorf("generation failed: %v", err)
}

func imageErrorMessage(err error) string {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return "Image generation failed: " + apiErr.Message
	}
	return "Failed to generate image. Please try again."
}

func voxelErrorMessage(err error) string {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return "Voxel scene generation failed: " + apiErr.Message
	}
	return "Failed to generate voxel scene. Please try again."
}

func dataURLMime(dataURL string) string {
	if !strings.HasPrefix(dataURL, "data:") {
		return ""
	}
	rest := dataURL[len("data:"):]
	end := strings.IndexAny(rest, ";,")
	if end < 0 {
		return ""
	}
	return rest[:end]
}
