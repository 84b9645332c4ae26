package anpr

import (
	"image"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"
)

const vehicleConfThreshold = 0.25

// cocoVehicleClasses are the COCO class ids treated as vehicles:
// car, motorcycle, bus, truck.
var cocoVehicleClasses = map[int]bool{2: true, 3: true, 5: true, 7: true}

// VehicleDetector is an optional upstream pre-filter that narrows the
// plate search to vehicle regions. A nil detector means "scan the whole
// frame".
type VehicleDetector interface {
	DetectVehicles(frame gocv.Mat) []image.Rectangle
	Close() error
}

// DNNVehicleDetector runs a general object detection network and keeps
// only vehicle-class boxes above the confidence floor. The net is shared
// and mutex-serialized like the plate model.
type DNNVehicleDetector struct {
	mu  sync.Mutex
	net gocv.Net
	log zerolog.Logger
}

// NewVehicleDetector returns nil when no model is configured or the
// network cannot be loaded; callers treat nil as "no pre-filter".
func NewVehicleDetector(modelPath string, log zerolog.Logger) *DNNVehicleDetector {
	if modelPath == "" {
		return nil
	}
	if _, err := os.Stat(modelPath); err != nil {
		log.Warn().Str("model", modelPath).Msg("vehicle model not found, pre-filter disabled")
		return nil
	}
	net := gocv.ReadNet(modelPath, "")
	if net.Empty() {
		log.Warn().Str("model", modelPath).Msg("failed to load vehicle model, pre-filter disabled")
		return nil
	}
	log.Info().Str("model", modelPath).Msg("vehicle pre-filter enabled")
	return &DNNVehicleDetector{net: net, log: log}
}

func (d *DNNVehicleDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

func (d *DNNVehicleDetector) DetectVehicles(frame gocv.Mat) []image.Rectangle {
	blob := gocv.BlobFromImage(frame, 1.0/255.0, image.Pt(modelInputSize, modelInputSize),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.mu.Lock()
	d.net.SetInput(blob, "")
	prob := d.net.Forward("")
	d.mu.Unlock()
	defer prob.Close()

	var confidences []float32
	var boxes []image.Rectangle

	rows := prob.Size()[1]
	for i := 0; i < rows; i++ {
		data := prob.RowRange(i, i+1)
		confidence := data.GetFloatAt(0, 4)
		if confidence > vehicleConfThreshold {
			// Best class among the per-class scores after the box head.
			bestClass, bestScore := -1, float32(0)
			cols := data.Cols()
			for c := 5; c < cols; c++ {
				if s := data.GetFloatAt(0, c); s > bestScore {
					bestScore = s
					bestClass = c - 5
				}
			}
			if cocoVehicleClasses[bestClass] {
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
		}
		data.Close()
	}

	if len(boxes) == 0 {
		return nil
	}

	indices := gocv.NMSBoxes(boxes, confidences, vehicleConfThreshold, modelNMSOverlap)
	regions := make([]image.Rectangle, 0, len(indices))
	for _, idx := range indices {
		rect := clampRect(boxes[idx], frame.Cols(), frame.Rows())
		if !rect.Empty() {
			regions = append(regions, rect)
		}
	}
	return regions
}
