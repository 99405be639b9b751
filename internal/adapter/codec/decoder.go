package codec

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/V4T54L/fieldlog/internal/domain"
)

// Decoder turns records back into items. It keeps the read-side string table,
// filled from the string records it is given.
type Decoder struct {
	strings map[int32]string
}

func NewDecoder() *Decoder {
	return &Decoder{strings: make(map[int32]string)}
}

// Reset forgets every string seen so far.
func (d *Decoder) Reset() { clear(d.strings) }

// Strings returns a copy of the string table keyed by record offset.
func (d *Decoder) Strings() map[int32]string {
	out := make(map[int32]string, len(d.strings))
	for k, v := range d.strings {
		out[k] = v
	}
	return out
}

// Decode interprets the record found at offset. String records only feed the
// string table and yield a nil item. Any inconsistency is a *domain.FormatError.
func (d *Decoder) Decode(offset int64, t RecordType, payload []byte) (domain.Item, error) {
	if t == RecordString {
		d.strings[int32(offset)] = string(payload)
		return nil, nil
	}
	c := &cursor{d: d, b: payload}
	var item domain.Item
	switch t {
	case RecordText:
		v := &domain.TextItem{}
		c.meta(&v.Meta)
		v.Text = c.str()
		v.Details = c.optStr()
		item = v
	case RecordData:
		v := &domain.DataItem{}
		c.meta(&v.Meta)
		v.Name = c.str()
		v.Value = c.optStr()
		item = v
	case RecordException:
		v := &domain.ExceptionItem{}
		c.meta(&v.Meta)
		c.exception(&v.Exception, 1)
		v.Context = c.optStr()
		v.Environment = c.environment()
		item = v
	case RecordScope, RecordRepeatedScope:
		v := &domain.ScopeItem{IsRepeated: t == RecordRepeatedScope}
		c.meta(&v.Meta)
		v.Type = domain.ScopeType(c.u8())
		v.Level = int32(c.u32())
		v.Name = c.str()
		v.Environment = c.environment()
		if c.err == nil && !v.Type.Valid() {
			c.fail("unknown scope type %d", v.Type)
		}
		item = v
	default:
		return nil, &domain.FormatError{Offset: offset, Reason: fmt.Sprintf("unknown record type %d", uint8(t))}
	}
	if c.err == nil && len(c.b) != 0 {
		c.fail("%d trailing payload bytes", len(c.b))
	}
	if c.err != nil {
		return nil, &domain.FormatError{Offset: offset, Reason: t.String() + " record", Err: c.err}
	}
	return item, nil
}

// cursor reads fixed-width fields from a payload, remembering the first error.
type cursor struct {
	d   *Decoder
	b   []byte
	err error
}

func (c *cursor) fail(format string, args ...any) {
	if c.err == nil {
		c.err = fmt.Errorf(format, args...)
	}
}

func (c *cursor) take(n int) []byte {
	if c.err != nil {
		return nil
	}
	if len(c.b) < n {
		c.fail("truncated payload")
		return nil
	}
	out := c.b[:n]
	c.b = c.b[n:]
	return out
}

func (c *cursor) u8() byte {
	if b := c.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (c *cursor) u32() uint32 {
	if b := c.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (c *cursor) u64() uint64 {
	if b := c.take(8); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

func (c *cursor) timestamp() time.Time {
	sec := int64(c.u64())
	nsec := c.u32()
	if c.err != nil {
		return time.Time{}
	}
	if nsec >= uint32(time.Second) {
		c.fail("nanoseconds out of range: %d", nsec)
		return time.Time{}
	}
	return time.Unix(sec, int64(nsec)).UTC()
}

func (c *cursor) meta(m *domain.Meta) {
	m.EventCounter = c.u32()
	m.Time = c.timestamp()
	m.Priority = domain.Priority(c.u8())
	if b := c.take(16); b != nil {
		m.SessionID = uuid.UUID(b)
	}
	m.ThreadID = int32(c.u32())
	if c.err == nil && !m.Priority.Valid() {
		c.fail("invalid priority %d", m.Priority)
	}
}

func (c *cursor) lookup(id int32) (string, bool) {
	s, ok := c.d.strings[id]
	if !ok {
		c.fail("reference to unknown string at offset %d", id)
	}
	return s, ok
}

func (c *cursor) str() string {
	id := int32(c.u32())
	if c.err != nil {
		return ""
	}
	if id == nullRef {
		c.fail("null reference in required string")
		return ""
	}
	s, _ := c.lookup(id)
	return s
}

func (c *cursor) optStr() *string {
	id := int32(c.u32())
	if c.err != nil || id == nullRef {
		return nil
	}
	if s, ok := c.lookup(id); ok {
		return &s
	}
	return nil
}

// count reads an element count and rejects values the remaining payload
// cannot possibly hold.
func (c *cursor) count(minSize int) int {
	n := int(c.u32())
	if c.err == nil && n > len(c.b)/minSize {
		c.fail("element count %d exceeds payload", n)
		return 0
	}
	return n
}

func (c *cursor) exception(ex *domain.Exception, depth int) {
	if depth > maxExceptionDepth {
		c.fail("exception nesting deeper than %d", maxExceptionDepth)
		return
	}
	ex.Type = c.str()
	ex.Message = c.str()
	ex.Code = int32(c.u32())
	ex.Data = c.optStr()
	if n := c.count(20); n > 0 {
		ex.StackFrames = make([]domain.StackFrame, n)
		for i := range ex.StackFrames {
			f := &ex.StackFrames[i]
			f.Module = c.str()
			f.Function = c.str()
			f.File = c.str()
			f.Line = int32(c.u32())
			f.Column = int32(c.u32())
		}
	}
	if n := c.count(24); n > 0 {
		ex.InnerExceptions = make([]domain.Exception, n)
		for i := range ex.InnerExceptions {
			c.exception(&ex.InnerExceptions[i], depth+1)
		}
	}
}

func (c *cursor) environment() *domain.EnvironmentSnapshot {
	switch c.u8() {
	case 0:
		return nil
	case 1:
	default:
		c.fail("invalid environment marker")
		return nil
	}
	env := &domain.EnvironmentSnapshot{}
	for _, s := range envStrings(env) {
		*s = c.str()
	}
	env.ProcessID = int32(c.u32())
	env.CPUCount = int32(c.u32())
	env.StartTime = c.timestamp()
	env.HeapAlloc = c.u64()
	env.SysMemory = c.u64()
	if c.err != nil {
		return nil
	}
	return env
}
