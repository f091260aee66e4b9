package model

// Status is the single source of truth for what the controller is doing.
type Status string

const (
	StatusIdle             Status = "idle"
	StatusGeneratingImage  Status = "generating_image"
	StatusGeneratingVoxels Status = "generating_voxels"
	StatusError            Status = "error"
)

// Busy reports whether a generation is in flight. Start transitions are
// only legal while not busy.
func (s Status) Busy() bool {
	return s == StatusGeneratingImage || s == StatusGeneratingVoxels
}

type ViewMode string

const (
	ViewImage ViewMode = "image"
	ViewVoxel ViewMode = "voxel"
)

type GenerationState struct {
	Status   Status `json:"status"`
	ErrorMsg string `json:"error_msg"`
	// ThinkingText is only meaningful while Status is StatusGeneratingVoxels.
	ThinkingText string `json:"thinking_text,omitempty"`
}

type ContentState struct {
	// ImageData is a data: URL holding the encoded image.
	ImageData string `json:"image_data,omitempty"`
	// VoxelCode is the self-contained scene markup produced from the image.
	VoxelCode string `json:"voxel_code,omitempty"`
	// VoxelURL references a pre-built scene document (example catalog).
	VoxelURL string `json:"voxel_url,omitempty"`
	ViewMode ViewMode `json:"view_mode"`
}

// UserContent is the persisted result of the user's own generation
// session. One record per session; the scene is filled in place when
// voxelization succeeds.
type UserContent struct {
	ID     string `json:"id"`
	Image  string `json:"image"`
	Voxel  string `json:"voxel,omitempty"`
	Prompt string `json:"prompt"`
}

// Example is a static catalog entry. Loaded at startup, never mutated.
type Example struct {
	ImageRef string `json:"img"`
	SceneRef string `json:"html"`
	AltText  string `json:"alt"`
}
