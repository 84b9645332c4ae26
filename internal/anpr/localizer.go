package anpr

import (
	"image"
	"os"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"
)

// Localizer finds plate-region candidates on a full camera frame,
// most relevant first. When vehicle regions from an upstream pre-filter
// are supplied, implementations may restrict the search to them.
type Localizer interface {
	Localize(frame gocv.Mat, vehicles []image.Rectangle) []PlateCandidate
	Close() error
}

// NewLocalizer selects the localization strategy at construction time:
// a fine-tuned detector model when modelPath exists on disk, otherwise
// the traditional contour fallback.
func NewLocalizer(modelPath string, confidence float64, log zerolog.Logger) Localizer {
	if modelPath != "" {
		if _, err := os.Stat(modelPath); err == nil {
			loc := NewModelLocalizer(modelPath, float32(confidence), log)
			if loc != nil {
				log.Info().Str("model", modelPath).Msg("using learned plate localizer")
				return loc
			}
		}
	}
	log.Info().Msg("no plate model available, using contour localizer")
	return NewContourLocalizer(log)
}
