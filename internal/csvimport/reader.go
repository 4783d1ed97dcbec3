// Package csvimport reads lead CSV files and converts their rows into
// InstagramLead values.
package csvimport

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/timmy/leadimport/internal/domain"
)

// Row maps a header column name to its trimmed raw value. A column missing
// from the header is absent from the map.
type Row map[string]string

// Get returns the value for column and whether the column exists.
func (r Row) Get(column string) (string, bool) {
	v, ok := r[column]
	return v, ok
}

// Reader streams Rows from CSV input with a header line. Only the current
// record is held in memory.
//
// Whitespace around delimiters is ignored. Unquoted values are trimmed;
// quoted values keep their inner whitespace.
type Reader struct {
	csv    *csv.Reader
	raw    *recorder
	offset int64 // input offset where the next record starts
	header []string
	err    error
	rows   int
}

// NewReader wraps r. The header is read lazily on the first call to Next.
func NewReader(r io.Reader) *Reader {
	raw := &recorder{r: r}
	cr := csv.NewReader(raw)
	cr.Comma = ','
	cr.FieldsPerRecord = 0 // every record must match the header width
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true
	return &Reader{csv: cr, raw: raw}
}

// Header returns the trimmed column names once the first Next call has run.
func (r *Reader) Header() []string {
	return r.header
}

// Rows returns the number of data rows returned so far.
func (r *Reader) Rows() int {
	return r.rows
}

// Next returns the next data row, io.EOF after the last one, or a
// *domain.ParseError for malformed input. Errors are sticky.
func (r *Reader) Next() (Row, error) {
	if r.err != nil {
		return nil, r.err
	}

	if r.header == nil {
		record, err := r.read()
		if err != nil {
			r.err = r.wrap(err)
			return nil, r.err
		}
		r.header = make([]string, len(record))
		for i, col := range record {
			r.header[i] = strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))
		}
		r.raw.discard(r.offset)
	}

	start := r.offset
	record, err := r.read()
	if err != nil {
		r.err = r.wrap(err)
		return nil, r.err
	}

	raw := r.raw.since(start, r.offset)
	row := make(Row, len(r.header))
	for i, col := range r.header {
		if r.quoted(raw, i) {
			row[col] = record[i]
		} else {
			row[col] = strings.TrimSpace(record[i])
		}
	}
	r.raw.discard(r.offset)
	r.rows++
	return row, nil
}

func (r *Reader) read() ([]string, error) {
	record, err := r.csv.Read()
	if err != nil {
		return nil, err
	}
	r.offset = r.csv.InputOffset()
	return record, nil
}

// quoted reports whether field i of the record whose bytes are raw opened
// with a quote.
func (r *Reader) quoted(raw []byte, field int) bool {
	// skipped blank lines precede the record
	for {
		if bytes.HasPrefix(raw, []byte("\n")) {
			raw = raw[1:]
		} else if bytes.HasPrefix(raw, []byte("\r\n")) {
			raw = raw[2:]
		} else {
			break
		}
	}

	firstLine, _ := r.csv.FieldPos(0)
	line, col := r.csv.FieldPos(field)
	for ; line > firstLine; line-- {
		i := bytes.IndexByte(raw, '\n')
		if i < 0 {
			return false
		}
		raw = raw[i+1:]
	}
	pos := col - 1
	return pos >= 0 && pos < len(raw) && raw[pos] == '"'
}

// recorder keeps the bytes the csv.Reader has pulled but not yet released,
// so a record's raw form can be inspected after parsing.
type recorder struct {
	r    io.Reader
	buf  []byte
	base int64 // input offset of buf[0]
}

func (rc *recorder) Read(p []byte) (int, error) {
	n, err := rc.r.Read(p)
	rc.buf = append(rc.buf, p[:n]...)
	return n, err
}

// since returns the bytes in [from, to).
func (rc *recorder) since(from, to int64) []byte {
	lo, hi := from-rc.base, to-rc.base
	if lo < 0 || hi > int64(len(rc.buf)) || lo > hi {
		return nil
	}
	return rc.buf[lo:hi]
}

// discard releases the bytes before upTo.
func (rc *recorder) discard(upTo int64) {
	n := upTo - rc.base
	if n <= 0 {
		return
	}
	if n > int64(len(rc.buf)) {
		n = int64(len(rc.buf))
	}
	rc.buf = append(rc.buf[:0], rc.buf[n:]...)
	rc.base += n
}

func (r *Reader) wrap(err error) error {
	if errors.Is(err, io.EOF) {
		return io.EOF
	}
	var perr *csv.ParseError
	if errors.As(err, &perr) {
		return &domain.ParseError{Line: perr.Line, Err: perr.Err}
	}
	return &domain.ParseError{Err: err}
}

// Parse drains r into memory. Use Reader directly for large inputs.
func Parse(r io.Reader) ([]Row, error) {
	reader := NewReader(r)
	var rows []Row
	for {
		row, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
}
