package previews

import (
	"fmt"
	"strings"
)

// Orientation is the canvas aspect category a preview is produced for.
type Orientation string

const (
	OrientationSquare     Orientation = "square"
	OrientationHorizontal Orientation = "horizontal"
	OrientationVertical   Orientation = "vertical"
)

// DefaultOrientation is the live orientation of a new session.
const DefaultOrientation = OrientationSquare

// Orientations lists the supported orientations.
func Orientations() []Orientation {
	return []Orientation{OrientationSquare, OrientationHorizontal, OrientationVertical}
}

// ParseOrientation validates s. Matching is case-insensitive.
func ParseOrientation(s string) (Orientation, error) {
	o := Orientation(strings.ToLower(strings.TrimSpace(s)))
	if !o.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidOrientation, s)
	}
	return o, nil
}

// Valid reports whether o is a supported orientation.
func (o Orientation) Valid() bool {
	switch o {
	case OrientationSquare, OrientationHorizontal, OrientationVertical:
		return true
	default:
		return false
	}
}

// AspectRatio returns the ratio sent to the generation service.
func (o Orientation) AspectRatio() string {
	switch o {
	case OrientationHorizontal:
		return "3:2"
	case OrientationVertical:
		return "2:3"
	default:
		return "1:1"
	}
}

// Dimensions returns the crop size for o with the longest side equal to longSide.
func (o Orientation) Dimensions(longSide int) (width, height int) {
	short := longSide * 2 / 3
	switch o {
	case OrientationHorizontal:
		return longSide, short
	case OrientationVertical:
		return short, longSide
	default:
		return longSide, longSide
	}
}

// fitLongSide returns the largest long side whose crop for o fits inside a
// width x height image.
func (o Orientation) fitLongSide(width, height int) int {
	switch o {
	case OrientationHorizontal:
		return min(width, height*3/2)
	case OrientationVertical:
		return min(height, width*3/2)
	default:
		return min(width, height)
	}
}
