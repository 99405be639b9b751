// Package codec implements the binary record format of FieldLog files.
//
// A file starts with the 9-byte magic "FieldLog\x00" and a version byte.
// Records follow back to back: a big-endian uint32 header carrying the record
// type in its top 4 bits and the payload length in the low 28 bits, then the
// payload. Strings are interned: the first use of a value writes a string
// record, and every reference stores the file offset of that record.
package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/V4T54L/fieldlog/internal/domain"
)

const (
	// FormatVersion is the only version this package reads and writes.
	FormatVersion byte = 1

	HeaderSize       = len(magic) + 1
	RecordHeaderSize = 4

	// MaxPayload is the largest payload a record header can describe.
	MaxPayload = 1<<28 - 1

	nullRef int32 = -1
	// nullWord is nullRef as it is stored on disk.
	nullWord uint32 = 1<<32 - 1

	magic = "FieldLog\x00"
)

// RecordType is the tag stored in the top 4 bits of a record header.
type RecordType uint8

const (
	RecordNone RecordType = iota
	RecordString
	RecordText
	RecordData
	RecordException
	RecordScope
	RecordRepeatedScope
)

func (t RecordType) valid() bool { return t > RecordNone && t <= RecordRepeatedScope }

func (t RecordType) String() string {
	switch t {
	case RecordString:
		return "string"
	case RecordText:
		return "text"
	case RecordData:
		return "data"
	case RecordException:
		return "exception"
	case RecordScope:
		return "scope"
	case RecordRepeatedScope:
		return "repeated-scope"
	default:
		return fmt.Sprintf("record(%d)", uint8(t))
	}
}

// AppendFileHeader appends the file header to dst.
func AppendFileHeader(dst []byte) []byte {
	dst = append(dst, magic...)
	return append(dst, FormatVersion)
}

// CheckFileHeader validates the first HeaderSize bytes of a file.
func CheckFileHeader(b []byte) error {
	if len(b) < HeaderSize {
		return &domain.FormatError{Reason: "truncated file header"}
	}
	if string(b[:len(magic)]) != magic {
		return &domain.FormatError{Reason: "bad magic"}
	}
	if v := b[len(magic)]; v != FormatVersion {
		return &domain.FormatError{Offset: int64(len(magic)), Reason: fmt.Sprintf("unsupported format version %d", v)}
	}
	return nil
}

func packRecordHeader(t RecordType, n int) uint32 {
	return uint32(t)<<28 | uint32(n)
}

// ParseRecordHeader splits a record header into type and payload length.
// Unknown types are a format error.
func ParseRecordHeader(b []byte) (RecordType, int, error) {
	h := binary.BigEndian.Uint32(b)
	t := RecordType(h >> 28)
	if !t.valid() {
		return 0, 0, &domain.FormatError{Reason: fmt.Sprintf("unknown record type %d", uint8(t))}
	}
	return t, int(h & MaxPayload), nil
}

func recordTypeOf(item domain.Item) (RecordType, error) {
	switch v := item.(type) {
	case *domain.TextItem:
		return RecordText, nil
	case *domain.DataItem:
		return RecordData, nil
	case *domain.ExceptionItem:
		return RecordException, nil
	case *domain.ScopeItem:
		if v.IsRepeated {
			return RecordRepeatedScope, nil
		}
		return RecordScope, nil
	default:
		return RecordNone, fmt.Errorf("codec: unsupported item type %T", item)
	}
}
