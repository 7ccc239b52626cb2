package pose

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for landmark handling.
var (
	ErrIncompleteLandmarks = errors.New("incomplete landmarks")
	ErrUnknownLandmark     = errors.New("unknown landmark name")
	ErrMalformedLandmarks  = errors.New("malformed landmarks payload")
)

// IncompleteLandmarksError reports landmarks the scorer needs but did not get.
// Invalid lists points that were present with non-finite coordinates.
type IncompleteLandmarksError struct {
	Missing []Name
	Invalid []Name
}

func (e *IncompleteLandmarksError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+join(e.Missing))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "non-finite "+join(e.Invalid))
	}
	return fmt.Sprintf("incomplete landmarks: %s", strings.Join(parts, "; "))
}

// Is makes errors.Is(err, ErrIncompleteLandmarks) match.
func (e *IncompleteLandmarksError) Is(target error) bool {
	return target == ErrIncompleteLandmarks
}

func join(ns []Name) string {
	s := make([]string, len(ns))
	for i, n := range ns {
		s[i] = string(n)
	}
	return strings.Join(s, ",")
}
