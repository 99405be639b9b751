package codec

import (
	"bufio"
	"errors"
	"io"

	"github.com/V4T54L/fieldlog/internal/domain"
)

// Record is one raw record as stored in a file.
type Record struct {
	Offset  int64
	Type    RecordType
	Payload []byte
}

// RecordReader reads records sequentially from a stream. A stream ending
// between records is a clean end; one ending inside a record is a format error.
type RecordReader struct {
	r      *bufio.Reader
	offset int64
	hdr    [RecordHeaderSize]byte
	buf    []byte
}

// NewRecordReader reads records from r, whose first byte is at offset.
func NewRecordReader(r io.Reader, offset int64) *RecordReader {
	return &RecordReader{r: bufio.NewReaderSize(r, 64<<10), offset: offset}
}

// Offset is the file offset of the next record.
func (rr *RecordReader) Offset() int64 { return rr.offset }

// Next returns the next record. Its payload is only valid until the next call.
func (rr *RecordReader) Next() (Record, error) {
	n, err := io.ReadFull(rr.r, rr.hdr[:])
	if err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, rr.truncated(err)
	}
	t, size, err := ParseRecordHeader(rr.hdr[:])
	if err != nil {
		return Record{}, withOffset(err, rr.offset)
	}
	if cap(rr.buf) < size {
		rr.buf = make([]byte, size)
	}
	rr.buf = rr.buf[:size]
	if _, err := io.ReadFull(rr.r, rr.buf); err != nil {
		return Record{}, rr.truncated(err)
	}
	rec := Record{Offset: rr.offset, Type: t, Payload: rr.buf}
	rr.offset += int64(RecordHeaderSize + size)
	return rec, nil
}

func (rr *RecordReader) truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &domain.FormatError{Offset: rr.offset, Reason: "truncated record", Err: io.ErrUnexpectedEOF}
	}
	return err
}

func withOffset(err error, offset int64) error {
	var fe *domain.FormatError
	if errors.As(err, &fe) {
		fe.Offset = offset
	}
	return err
}

// ReadFileHeader reads and validates the file header from r.
func ReadFileHeader(r io.Reader) error {
	b := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, b); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return &domain.FormatError{Reason: "truncated file header", Err: err}
		}
		return err
	}
	return CheckFileHeader(b)
}

// Rebuild scans a whole file and returns an encoder positioned at its end
// whose intern cache holds every string record of the file.
func Rebuild(r io.Reader) (*Encoder, error) {
	if err := ReadFileHeader(r); err != nil {
		return nil, err
	}
	rr := NewRecordReader(r, int64(HeaderSize))
	enc := NewEncoder(0)
	for {
		rec, err := rr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if rec.Type == RecordString {
			enc.Observe(rec.Offset, string(rec.Payload))
		}
	}
	enc.offset = rr.Offset()
	return enc, nil
}
