package fusion

import (
	"errors"
	"fmt"
)

var (
	// ErrIndexOutOfRange is returned when a correspondence refers to a
	// keypoint that does not exist.
	ErrIndexOutOfRange = errors.New("keypoint index out of range")

	// ErrDuplicateBoxID is returned when two boxes in one frame share an ID.
	ErrDuplicateBoxID = errors.New("duplicate bounding box id")

	// ErrEmptyInput is returned when a frame lacks the boxes or points the
	// pipeline needs.
	ErrEmptyInput = errors.New("empty input")
)

// IndexError describes an out-of-range keypoint index.
type IndexError struct {
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("keypoint index %d out of range [0,%d)", e.Index, e.Len)
}

// Is makes errors.Is(err, ErrIndexOutOfRange) hold for *IndexError.
func (e *IndexError) Is(target error) bool {
	return target == ErrIndexOutOfRange
}
