package anpr

import (
	"image"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"garage-monitor/internal/utils"
)

const (
	// minOCRHeight is the plate crop height below which OCR accuracy
	// degrades sharply; smaller crops are upscaled to this height.
	minOCRHeight = 60

	ocrWhitelist = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ "
)

// TextExtractor reads plate text from a cropped plate region using a
// multi-pass Tesseract run over preprocessed variants of the crop.
//
// A single Tesseract client is shared by all pipeline workers; it is not
// reentrant, so every OCR pass is serialized behind mu.
type TextExtractor struct {
	mu     sync.Mutex
	client *gosseract.Client
	log    zerolog.Logger
}

func NewTextExtractor(log zerolog.Logger) (*TextExtractor, error) {
	client := gosseract.NewClient()
	if err := client.SetLanguage("eng"); err != nil {
		client.Close()
		return nil, err
	}
	if err := client.SetWhitelist(ocrWhitelist); err != nil {
		client.Close()
		return nil, err
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		client.Close()
		return nil, err
	}
	return &TextExtractor{client: client, log: log}, nil
}

func (e *TextExtractor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}

// Extract runs OCR over a plate crop and returns the normalized plate
// string, or "" when no pass produced a plausible reading. Engine
// failures never escape this boundary.
func (e *TextExtractor) Extract(region gocv.Mat) string {
	if region.Empty() {
		return ""
	}

	src := region
	var upscaled gocv.Mat
	if region.Rows() < minOCRHeight {
		scale := float64(minOCRHeight) / float64(region.Rows())
		upscaled = gocv.NewMat()
		defer upscaled.Close()
		gocv.Resize(region, &upscaled, image.Point{}, scale, scale, gocv.InterpolationCubic)
		src = upscaled
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)

	otsu := gocv.NewMat()
	defer otsu.Close()
	gocv.Threshold(gray, &otsu, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)

	clahe := gocv.NewCLAHEWithParams(2.0, image.Pt(8, 8))
	defer clahe.Close()
	equalized := gocv.NewMat()
	defer equalized.Close()
	clahe.Apply(gray, &equalized)

	var readings []string
	for _, variant := range []gocv.Mat{src, otsu, equalized} {
		text, err := e.recognize(variant)
		if err != nil {
			e.log.Debug().Err(err).Msg("ocr pass failed")
			continue
		}
		text = strings.TrimSpace(strings.Join(strings.Fields(text), " "))
		if text != "" && IsValidPlateText(text) {
			readings = append(readings, text)
		}
	}

	if len(readings) == 0 {
		return ""
	}

	// Longest reading wins; ties keep the earliest variant
	// (original before Otsu before CLAHE).
	best := readings[0]
	for _, r := range readings[1:] {
		if len(r) > len(best) {
			best = r
		}
	}
	return utils.NormalizePlate(best)
}

func (e *TextExtractor) recognize(img gocv.Mat) (string, error) {
	buf, err := gocv.IMEncode(".png", img)
	if err != nil {
		return "", err
	}
	defer buf.Close()

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.client.SetImageFromBytes(buf.GetBytes()); err != nil {
		return "", err
	}
	return e.client.Text()
}
