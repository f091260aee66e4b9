package utils

import (
	"net/http"
	"time"
)

// NewHTTPClient builds the shared outbound client. No client-level
// timeout is set: every call site arms its own context deadline, and a
// fixed Timeout here would race the per-endpoint deadlines (120s for
// image generation, 180s for voxelization).
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
