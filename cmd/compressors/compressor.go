package compressors

import (
	"errors"

	"github.com/klauspost/compress/flate"
)

var (
	// ErrArchiveExists is returned when the target archive is already on disk
	ErrArchiveExists = errors.New("archive already exists")

	// ErrInvalidLevel is returned for a DEFLATE level outside 1-9
	ErrInvalidLevel = errors.New("compression level must be between 1 and 9")
)

// DefaultLevel is the DEFLATE level used when none is configured
const DefaultLevel = 6

func validLevel(level int) bool {
	return level >= flate.BestSpeed && level <= flate.BestCompression
}
