package niches

import (
	"github.com/slye-labs/slye-backend/internal/backends"
	"github.com/slye-labs/slye-backend/pkg/db/models"
	"github.com/slye-labs/slye-backend/pkg/enums"
)

const (
	TypeASMRVideo = "asmr_video"
	TypeGeneral   = "general"

	grokTextToVideo = "grok-imagine/text-to-video"
)

// DefaultConfigs is the catalog shipped with the service. New types are appended here.
func DefaultConfigs() []Config {
	return []Config{
		{
			Type:        TypeASMRVideo,
			DisplayName: "ASMR Video",
			Backend:     backends.Kie,
			Model:       grokTextToVideo,
			CreditCost:  5,
			Defaults: models.VideoOptions{
				AspectRatio: enums.AspectRatioPortrait,
				Mode:        "normal",
			},
		},
		{
			Type:        TypeGeneral,
			DisplayName: "General Video",
			Backend:     backends.Kie,
			Model:       grokTextToVideo,
			CreditCost:  5,
			Defaults: models.VideoOptions{
				AspectRatio: enums.AspectRatioPortrait,
			},
		},
	}
}

func NewDefaultRegistry() (*Registry, error) {
	return NewRegistry(DefaultConfigs()...)
}
