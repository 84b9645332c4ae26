// Package anpr implements the number-plate recognition pipeline: plate
// localization on a camera frame, OCR over the localized regions and
// validation of the recovered text.
package anpr

import "image"

// PlateCandidate is a localized, still unread plate region. Candidates
// live for a single pipeline invocation.
type PlateCandidate struct {
	Rect       image.Rectangle
	Confidence float64
}

// PlateResult is a candidate whose region yielded a validated plate
// string. Zero or more per frame.
type PlateResult struct {
	PlateNumber string
	Rect        image.Rectangle
	Confidence  float64
}

// clampRect restricts r to the bounds of a width×height frame. The result
// is empty when r lies entirely outside the frame.
func clampRect(r image.Rectangle, width, height int) image.Rectangle {
	return r.Intersect(image.Rect(0, 0, width, height))
}
