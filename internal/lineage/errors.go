package lineage

import (
	"errors"
	"fmt"
)

var (
	// ErrFrameRange is returned when a frame index falls outside [0, FrameNum).
	ErrFrameRange = errors.New("frame out of range")
	// ErrSameFrame is returned when a two-frame operation is given one frame twice.
	ErrSameFrame = errors.New("frames must differ")
	// ErrNotAdjacent is returned when two frames are more than one step apart.
	ErrNotAdjacent = errors.New("frames are not adjacent")
	// ErrDuplicateCell is returned when an id is already used in the frame.
	ErrDuplicateCell = errors.New("cell id already exists in frame")
	// ErrCellNotFound is returned when no listed cell resolves in the frame.
	ErrCellNotFound = errors.New("cell not found")
	// ErrInvalidFormat is returned by Import for malformed track files.
	ErrInvalidFormat = errors.New("invalid track file")
	// ErrVersion is returned by Import for track files of another format version.
	ErrVersion = errors.New("unsupported track file version")
)

// FrameRangeError reports the frame that failed the range check.
//
// errors.Is(err, ErrFrameRange) holds for every FrameRangeError.
type FrameRangeError struct {
	Frame    int
	FrameNum int
}

func (e *FrameRangeError) Error() string {
	return fmt.Sprintf("frame %d out of range [0, %d)", e.Frame, e.FrameNum)
}

func (e *FrameRangeError) Unwrap() error { return ErrFrameRange }

func frameRangeError(frame, frameNum int) error {
	return &FrameRangeError{Frame: frame, FrameNum: frameNum}
}
