package compressors

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

// ZipCompressor packs a single file into a new ZIP archive using DEFLATE
type ZipCompressor struct {
	level int
}

// NewZipCompressor creates a ZIP compressor with the given DEFLATE level
func NewZipCompressor(level int) (*ZipCompressor, error) {
	if !validLevel(level) {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidLevel, level)
	}
	return &ZipCompressor{level: level}, nil
}

// ZIP archive file extension and content type
const (
	ZipExtension = ".zip"
	ZipMIMEType  = "application/zip"
)

// CompressFile writes src as the only entry of a new archive at dst and
// returns the archive size. dst is created exclusively: an existing file is
// never overwritten and yields ErrArchiveExists. On any other failure the
// partially written archive is removed.
func (c *ZipCompressor) CompressFile(src, dst string) (size int64, err error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", src, err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return 0, fmt.Errorf("%w: %s", ErrArchiveExists, dst)
		}
		return 0, fmt.Errorf("failed to create %s: %w", dst, err)
	}

	closed := false
	defer func() {
		if err == nil {
			return
		}
		if !closed {
			out.Close()
		}
		_ = os.Remove(dst)
	}()

	zw := zip.NewWriter(out)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, c.level)
	})

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return 0, fmt.Errorf("failed to build zip header: %w", err)
	}
	header.Name = filepath.Base(src)
	header.Method = zip.Deflate

	entry, err := zw.CreateHeader(header)
	if err != nil {
		return 0, fmt.Errorf("failed to create zip entry: %w", err)
	}
	if _, err = io.Copy(entry, in); err != nil {
		return 0, fmt.Errorf("failed to compress %s: %w", src, err)
	}
	if err = zw.Close(); err != nil {
		return 0, fmt.Errorf("failed to finalize zip: %w", err)
	}

	stat, err := out.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", dst, err)
	}

	closed = true
	if err = out.Close(); err != nil {
		return 0, fmt.Errorf("failed to close %s: %w", dst, err)
	}

	return stat.Size(), nil
}
