package enums

import "fmt"

// AspectRatio is the output frame shape requested from a video backend.
type AspectRatio string

const (
	AspectRatioPortrait  AspectRatio = "9:16"
	AspectRatioLandscape AspectRatio = "16:9"
	AspectRatioSquare    AspectRatio = "1:1"
)

var validAspectRatios = []AspectRatio{
	AspectRatioPortrait,
	AspectRatioLandscape,
	AspectRatioSquare,
}

func (a AspectRatio) String() string {
	return string(a)
}

func (a AspectRatio) IsValid() bool {
	for _, candidate := range validAspectRatios {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAspectRatio converts raw input into an AspectRatio.
func ParseAspectRatio(value string) (AspectRatio, error) {
	for _, candidate := range validAspectRatios {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aspect ratio %q", value)
}
