package formatters

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/jszwec/csvutil"
)

// CSVStreamWriter writes csv-tagged structs as CSV rows
type CSVStreamWriter struct {
	writer  *csv.Writer
	encoder *csvutil.Encoder
	rows    int64
	closed  bool
}

var _ StreamWriter = (*CSVStreamWriter)(nil)

// NewCSVStreamWriter writes the header of the header struct immediately, so
// a report without records still carries its column names
func NewCSVStreamWriter(w io.Writer, header any) (*CSVStreamWriter, error) {
	csvWriter := csv.NewWriter(w)
	encoder := csvutil.NewEncoder(csvWriter)

	if err := encoder.EncodeHeader(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	return &CSVStreamWriter{
		writer:  csvWriter,
		encoder: encoder,
	}, nil
}

// Write encodes one record
func (w *CSVStreamWriter) Write(record any) error {
	if w.closed {
		return ErrWriterClosed
	}
	if err := w.encoder.Encode(record); err != nil {
		return fmt.Errorf("failed to write CSV record: %w", err)
	}
	w.rows++
	return nil
}

// Rows returns the number of records written
func (w *CSVStreamWriter) Rows() int64 {
	return w.rows
}

// Close finalizes the CSV output by flushing the writer
func (w *CSVStreamWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}
	return nil
}
