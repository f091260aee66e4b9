package service

import "github.com/Woffluon/Voxel-Forge/internal/model"

// DefaultExamples is the static gallery catalog. Entries are immutable;
// selecting one shows its pre-built scene without any backend call.
func DefaultExamples() []model.Example {
	return []model.Example{
		{
			ImageRef: "/examples/example1.png",
			SceneRef: "/examples/example1.html",
			AltText:  "Voxel art of a floating island with cherry blossom tree and waterfall",
		},
		{
			ImageRef: "/examples/example2.png",
			SceneRef: "/examples/example2.html",
			AltText:  "Voxel art of a cat with jetpack flying through clouds",
		},
		{
			ImageRef: "/examples/example3.png",
			SceneRef: "/examples/example3.html",
			AltText:  "Voxel art of a Japanese pagoda in a garden with pond",
		},
	}
}
