package anpr

import (
	"image"
	"sync"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"
)

const (
	modelInputSize  = 640
	modelNMSOverlap = 0.5
)

// ModelLocalizer runs a fine-tuned plate detection network loaded once at
// startup. The underlying gocv.Net is not safe for concurrent Forward
// calls, so inference is serialized behind mu and the net is shared by
// all pipeline workers.
type ModelLocalizer struct {
	mu            sync.Mutex
	net           gocv.Net
	confThreshold float32
	log           zerolog.Logger
}

// NewModelLocalizer returns nil when the network cannot be loaded.
func NewModelLocalizer(modelPath string, confThreshold float32, log zerolog.Logger) *ModelLocalizer {
	net := gocv.ReadNet(modelPath, "")
	if net.Empty() {
		log.Warn().Str("model", modelPath).Msg("failed to load plate model")
		return nil
	}
	return &ModelLocalizer{
		net:           net,
		confThreshold: confThreshold,
		log:           log,
	}
}

func (m *ModelLocalizer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.net.Close()
}

// Localize returns one candidate per detected box with the model's own
// confidence, in the model's ranking order after non-maximum suppression.
// The vehicle pre-filter is ignored: the network scans the whole frame.
func (m *ModelLocalizer) Localize(frame gocv.Mat, _ []image.Rectangle) []PlateCandidate {
	blob := gocv.BlobFromImage(frame, 1.0/255.0, image.Pt(modelInputSize, modelInputSize),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	m.mu.Lock()
	m.net.SetInput(blob, "")
	prob := m.net.Forward("")
	m.mu.Unlock()
	defer prob.Close()

	var confidences []float32
	var boxes []image.Rectangle

	rows := prob.Size()[1]
	for i := 0; i < rows; i++ {
		data := prob.RowRange(i, i+1)
		confidence := data.GetFloatAt(0, 4)
		if confidence > m.confThreshold {
			cx := data.GetFloatAt(0, 0)
			cy := data.GetFloatAt(0, 1)
			w := data.GetFloatAt(0, 2)
			h := data.GetFloatAt(0, 3)

			left := int((cx - w/2) * float32(frame.Cols()))
			top := int((cy - h/2) * float32(frame.Rows()))
			width := int(w * float32(frame.Cols()))
			height := int(h * float32(frame.Rows()))

			confidences = append(confidences, confidence)
			boxes = append(boxes, image.Rect(left, top, left+width, top+height))
		}
		data.Close()
	}

	if len(boxes) == 0 {
		return nil
	}

	indices := gocv.NMSBoxes(boxes, confidences, m.confThreshold, modelNMSOverlap)
	candidates := make([]PlateCandidate, 0, len(indices))
	for _, idx := range indices {
		rect := clampRect(boxes[idx], frame.Cols(), frame.Rows())
		if rect.Empty() {
			continue
		}
		candidates = append(candidates, PlateCandidate{
			Rect:       rect,
			Confidence: float64(confidences[idx]),
		})
	}
	return candidates
}
