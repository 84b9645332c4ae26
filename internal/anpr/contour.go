package anpr

import (
	"image"
	"sort"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"
)

const (
	plateMinAspect  = 2.0
	plateMaxAspect  = 6.0
	plateMinWidth   = 80
	plateMinHeight  = 20
	plateMinArea    = 2000
	plateMaxArea    = 50000
	platePadding    = 10
	cornerDedupDist = 30
	maxCandidates   = 5

	// Plates sit on the lower part of a vehicle; the top of a vehicle
	// region (windshield, headlights) only produces false contours.
	vehicleLowerFraction = 0.7
)

// ContourLocalizer is the traditional fallback strategy used when no
// fine-tuned detector model is available. It runs two geometric pipelines
// (blackhat morphology and Canny edges) over a bilateral-filtered
// grayscale copy of the frame and keeps contours whose bounding boxes
// have plate-like geometry. No learned confidence exists, so every
// candidate carries confidence 0 and ranking uses area × aspect ratio.
type ContourLocalizer struct {
	log zerolog.Logger
}

func NewContourLocalizer(log zerolog.Logger) *ContourLocalizer {
	return &ContourLocalizer{log: log}
}

func (c *ContourLocalizer) Close() error { return nil }

func (c *ContourLocalizer) Localize(frame gocv.Mat, vehicles []image.Rectangle) []PlateCandidate {
	if len(vehicles) > 0 {
		var all []PlateCandidate
		for _, v := range vehicles {
			region := lowerVehicleRegion(v, frame.Cols(), frame.Rows())
			if region.Empty() {
				continue
			}
			all = append(all, c.scan(frame, region)...)
		}
		if len(all) > 0 {
			return rankCandidates(all)
		}
		// Nothing plate-like inside any vehicle, fall back to the
		// whole frame.
	}
	return rankCandidates(c.scan(frame, image.Rect(0, 0, frame.Cols(), frame.Rows())))
}

func (c *ContourLocalizer) scan(frame gocv.Mat, region image.Rectangle) []PlateCandidate {
	roi := frame.Region(region)
	defer roi.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(roi, &gray, gocv.ColorBGRToGray)

	filtered := gocv.NewMat()
	defer filtered.Close()
	gocv.BilateralFilter(gray, &filtered, 11, 17, 17)

	var rects []image.Rectangle
	for _, r := range c.blackhatPass(filtered) {
		rects = appendCandidateRect(rects, r, region, frame.Cols(), frame.Rows())
	}
	for _, r := range c.edgePass(filtered) {
		rects = appendCandidateRect(rects, r, region, frame.Cols(), frame.Rows())
	}

	candidates := make([]PlateCandidate, 0, len(rects))
	for _, r := range rects {
		candidates = append(candidates, PlateCandidate{Rect: r, Confidence: 0})
	}
	return candidates
}

// blackhatPass highlights dark characters on bright plate backgrounds:
// blackhat morphology, Otsu threshold, dilation, external contours.
func (c *ContourLocalizer) blackhatPass(gray gocv.Mat) []image.Rectangle {
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(13, 5))
	defer kernel.Close()

	blackhat := gocv.NewMat()
	defer blackhat.Close()
	gocv.MorphologyEx(gray, &blackhat, gocv.MorphBlackhat, kernel)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(blackhat, &thresh, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)

	dilateKernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(3, 3))
	defer dilateKernel.Close()
	dilated := gocv.NewMat()
	defer dilated.Close()
	gocv.Dilate(thresh, &dilated, dilateKernel)

	return externalContourRects(dilated)
}

// edgePass catches plates whose characters do not survive the blackhat
// transform: Canny edges closed into solid regions, external contours.
func (c *ContourLocalizer) edgePass(gray gocv.Mat) []image.Rectangle {
	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(gray, &edges, 30, 200)

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(17, 3))
	defer kernel.Close()
	closed := gocv.NewMat()
	defer closed.Close()
	gocv.MorphologyEx(edges, &closed, gocv.MorphClose, kernel)

	return externalContourRects(closed)
}

func externalContourRects(binary gocv.Mat) []image.Rectangle {
	contours := gocv.FindContours(binary, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	rects := make([]image.Rectangle, 0, contours.Size())
	for i := 0; i < contours.Size(); i++ {
		rects = append(rects, gocv.BoundingRect(contours.At(i)))
	}
	return rects
}

// appendCandidateRect translates a contour box from region space into
// frame space, applies the plate geometry gate, pads and clamps it, and
// drops it when a kept box already starts at (nearly) the same corner.
func appendCandidateRect(kept []image.Rectangle, r, region image.Rectangle, frameW, frameH int) []image.Rectangle {
	r = r.Add(region.Min)
	if !plateLikeRect(r) {
		return kept
	}
	r = padRect(r, platePadding, frameW, frameH)
	for _, existing := range kept {
		if sameCorner(existing, r) {
			return kept
		}
	}
	return append(kept, r)
}

// plateLikeRect is the geometry gate for contour bounding boxes.
func plateLikeRect(r image.Rectangle) bool {
	w, h := r.Dx(), r.Dy()
	if h <= 0 {
		return false
	}
	aspect := float64(w) / float64(h)
	if aspect < plateMinAspect || aspect > plateMaxAspect {
		return false
	}
	if w <= plateMinWidth || h <= plateMinHeight {
		return false
	}
	area := w * h
	return area > plateMinArea && area < plateMaxArea
}

func padRect(r image.Rectangle, pad, frameW, frameH int) image.Rectangle {
	return clampRect(r.Inset(-pad), frameW, frameH)
}

// sameCorner reports whether two boxes start within the dedup distance
// of each other in both axes.
func sameCorner(a, b image.Rectangle) bool {
	dx := a.Min.X - b.Min.X
	if dx < 0 {
		dx = -dx
	}
	dy := a.Min.Y - b.Min.Y
	if dy < 0 {
		dy = -dy
	}
	return dx <= cornerDedupDist && dy <= cornerDedupDist
}

func rectScore(r image.Rectangle) float64 {
	w, h := r.Dx(), r.Dy()
	if h <= 0 {
		return 0
	}
	return float64(w*h) * (float64(w) / float64(h))
}

// rankCandidates orders candidates by descending area × aspect ratio and
// keeps the top five.
func rankCandidates(candidates []PlateCandidate) []PlateCandidate {
	sort.SliceStable(candidates, func(i, j int) bool {
		return rectScore(candidates[i].Rect) > rectScore(candidates[j].Rect)
	})
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}
	return candidates
}

// lowerVehicleRegion keeps the lower part of a vehicle box, clamped to
// the frame.
func lowerVehicleRegion(v image.Rectangle, frameW, frameH int) image.Rectangle {
	top := v.Min.Y + int(float64(v.Dy())*(1-vehicleLowerFraction))
	return clampRect(image.Rect(v.Min.X, top, v.Max.X, v.Max.Y), frameW, frameH)
}
