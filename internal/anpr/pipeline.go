package anpr

import (
	"image"
	"image/color"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"garage-monitor/internal/metrics"
)

var annotationColor = color.RGBA{G: 255, A: 255}

// Pipeline composes localization and text extraction over a frame.
type Pipeline struct {
	localizer Localizer
	extractor *TextExtractor
	vehicles  VehicleDetector
	metrics   *metrics.Metrics
	log       zerolog.Logger
}

// NewPipeline wires the detection stages together. vehicles may be nil,
// in which case the localizer scans the whole frame.
func NewPipeline(localizer Localizer, extractor *TextExtractor, vehicles VehicleDetector, m *metrics.Metrics, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		localizer: localizer,
		extractor: extractor,
		vehicles:  vehicles,
		metrics:   m,
		log:       log,
	}
}

func (p *Pipeline) Close() {
	if p.localizer != nil {
		p.localizer.Close()
	}
	if p.extractor != nil {
		p.extractor.Close()
	}
	if p.vehicles != nil {
		p.vehicles.Close()
	}
}

// Process runs the full detection chain over a frame and returns one
// result per distinct plate, discovery order preserved. When persist is
// set, accepted regions are drawn onto the frame and the annotated frame
// is written to outputPath as a best-effort side effect.
func (p *Pipeline) Process(frame *gocv.Mat, persist bool, outputPath string) []PlateResult {
	if frame == nil || frame.Empty() {
		return nil
	}

	var vehicleRegions []image.Rectangle
	if p.vehicles != nil {
		vehicleRegions = p.vehicles.DetectVehicles(*frame)
	}

	candidates := p.localizer.Localize(*frame, vehicleRegions)
	p.log.Debug().
		Int("candidates", len(candidates)).
		Int("vehicles", len(vehicleRegions)).
		Msg("localized plate candidates")

	var results []PlateResult
	for _, candidate := range candidates {
		rect := clampRect(candidate.Rect, frame.Cols(), frame.Rows())
		if rect.Empty() {
			continue
		}

		crop := frame.Region(rect)
		text := p.extractor.Extract(crop)
		crop.Close()

		if text == "" || !IsValidPlateText(text) {
			p.metrics.OCRMisses.Add(1)
			continue
		}

		results = append(results, PlateResult{
			PlateNumber: text,
			Rect:        rect,
			Confidence:  candidate.Confidence,
		})
		p.metrics.PlatesDetected.Add(1)
		p.log.Info().
			Str("plate", text).
			Float64("confidence", candidate.Confidence).
			Msg("plate recognized")

		if persist {
			annotate(frame, rect, text)
		}
	}

	if persist && outputPath != "" {
		if ok := gocv.IMWrite(outputPath, *frame); !ok {
			// Best effort: callers cannot distinguish a failed write.
			p.log.Warn().Str("path", outputPath).Msg("failed to write annotated frame")
		}
	}

	return dedupeResults(results)
}

func annotate(frame *gocv.Mat, rect image.Rectangle, text string) {
	gocv.Rectangle(frame, rect, annotationColor, 3)
	textOrigin := image.Pt(rect.Min.X, maxInt(rect.Min.Y-10, 20))
	gocv.PutText(frame, text, textOrigin, gocv.FontHersheySimplex, 0.9, annotationColor, 2)
}

// dedupeResults keeps the first result per distinct plate number,
// preserving discovery order.
func dedupeResults(results []PlateResult) []PlateResult {
	if len(results) < 2 {
		return results
	}
	seen := make(map[string]bool, len(results))
	unique := results[:0]
	for _, r := range results {
		if seen[r.PlateNumber] {
			continue
		}
		seen[r.PlateNumber] = true
		unique = append(unique, r)
	}
	return unique
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
