package storage

import (
	"github.com/Woffluon/Voxel-Forge/internal/model"
)

// Store persists the user's generation result per session. A session
// holds at most one record; saving again replaces it (voxelization
// updates the record's scene in place through the controller).
type Store interface {
	Save(sessionID string, content *model.UserContent) error
	Get(sessionID string) (*model.UserContent, error)
	Delete(sessionID string) error
	List() ([]*model.UserContent, error)
}
