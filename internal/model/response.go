package model

type GenerateImageResponse struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

type GenerateVoxelResponse struct {
	HTML      string   `json:"html"`
	Thoughts  []string `json:"thoughts,omitempty"`
	RequestID string   `json:"requestId,omitempty"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}
