package formatters

import "errors"

// ErrWriterClosed is returned when writing to a closed stream writer
var ErrWriterClosed = errors.New("stream writer is closed")

// CSVExtension is the file extension of CSV output
const CSVExtension = ".csv"

// StreamWriter writes records one at a time to an underlying writer
type StreamWriter interface {
	// Write appends one record
	Write(record any) error

	// Rows returns the number of records written so far
	Rows() int64

	// Close flushes buffered output. It does not close the underlying writer.
	Close() error
}
