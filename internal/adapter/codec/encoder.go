package codec

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/V4T54L/fieldlog/internal/domain"
)

const maxExceptionDepth = 64

// Encoder turns items into records for one file. It tracks the file offset of
// the next byte and the write-side intern cache, so every byte it returns must
// be written to the file in order.
type Encoder struct {
	offset  int64
	strings map[string]int32

	added   []string
	strRecs []byte
	payload []byte
	depth   int
}

// NewEncoder returns an encoder whose next record starts at offset.
func NewEncoder(offset int64) *Encoder {
	return &Encoder{offset: offset, strings: make(map[string]int32)}
}

// Offset is the file offset at which the next record will be written.
func (e *Encoder) Offset() int64 { return e.offset }

// Observe registers a string record already present in the file.
func (e *Encoder) Observe(offset int64, s string) {
	if _, ok := e.strings[s]; !ok {
		e.strings[s] = int32(offset)
	}
}

// Interned returns a copy of the intern cache, keyed by string value.
func (e *Encoder) Interned() map[string]int32 {
	out := make(map[string]int32, len(e.strings))
	for k, v := range e.strings {
		out[k] = v
	}
	return out
}

// Append encodes item and appends the resulting records to dst: first the
// string records for values not seen before, then the item record. An item
// whose payload does not fit is reported as *domain.CapacityError and leaves
// the encoder unchanged.
func (e *Encoder) Append(dst []byte, item domain.Item) ([]byte, error) {
	t, err := recordTypeOf(item)
	if err != nil {
		return dst, err
	}
	e.added = e.added[:0]
	e.strRecs = e.strRecs[:0]
	e.payload = e.payload[:0]
	e.depth = 0

	if err := e.encodeItem(item); err != nil {
		e.rollback()
		return dst, err
	}
	if len(e.payload) > MaxPayload {
		e.rollback()
		return dst, &domain.CapacityError{Size: len(e.payload), Max: MaxPayload}
	}

	start := len(dst)
	dst = append(dst, e.strRecs...)
	dst = binary.BigEndian.AppendUint32(dst, packRecordHeader(t, len(e.payload)))
	dst = append(dst, e.payload...)
	e.offset += int64(len(dst) - start)
	return dst, nil
}

func (e *Encoder) rollback() {
	for _, s := range e.added {
		delete(e.strings, s)
	}
	e.added = e.added[:0]
}

func (e *Encoder) encodeItem(item domain.Item) error {
	switch v := item.(type) {
	case *domain.TextItem:
		e.meta(&v.Meta)
		if err := e.ref(v.Text); err != nil {
			return err
		}
		return e.optRef(v.Details)
	case *domain.DataItem:
		e.meta(&v.Meta)
		if err := e.ref(v.Name); err != nil {
			return err
		}
		return e.optRef(v.Value)
	case *domain.ExceptionItem:
		e.meta(&v.Meta)
		if err := e.exception(&v.Exception); err != nil {
			return err
		}
		if err := e.optRef(v.Context); err != nil {
			return err
		}
		return e.environment(v.Environment)
	case *domain.ScopeItem:
		e.meta(&v.Meta)
		e.payload = append(e.payload, byte(v.Type))
		e.payload = binary.BigEndian.AppendUint32(e.payload, uint32(v.Level))
		if err := e.ref(v.Name); err != nil {
			return err
		}
		return e.environment(v.Environment)
	}
	return fmt.Errorf("codec: unsupported item type %T", item)
}

func (e *Encoder) meta(m *domain.Meta) {
	e.payload = binary.BigEndian.AppendUint32(e.payload, m.EventCounter)
	e.timestamp(m.Time)
	e.payload = append(e.payload, byte(m.Priority))
	e.payload = append(e.payload, m.SessionID[:]...)
	e.payload = binary.BigEndian.AppendUint32(e.payload, uint32(m.ThreadID))
}

func (e *Encoder) timestamp(t time.Time) {
	e.payload = binary.BigEndian.AppendUint64(e.payload, uint64(t.Unix()))
	e.payload = binary.BigEndian.AppendUint32(e.payload, uint32(t.Nanosecond()))
}

func (e *Encoder) exception(ex *domain.Exception) error {
	e.depth++
	defer func() { e.depth-- }()
	if e.depth > maxExceptionDepth {
		return fmt.Errorf("codec: exception nesting deeper than %d", maxExceptionDepth)
	}
	if err := e.ref(ex.Type); err != nil {
		return err
	}
	if err := e.ref(ex.Message); err != nil {
		return err
	}
	e.payload = binary.BigEndian.AppendUint32(e.payload, uint32(ex.Code))
	if err := e.optRef(ex.Data); err != nil {
		return err
	}
	e.payload = binary.BigEndian.AppendUint32(e.payload, uint32(len(ex.StackFrames)))
	for i := range ex.StackFrames {
		f := &ex.StackFrames[i]
		for _, s := range [...]string{f.Module, f.Function, f.File} {
			if err := e.ref(s); err != nil {
				return err
			}
		}
		e.payload = binary.BigEndian.AppendUint32(e.payload, uint32(f.Line))
		e.payload = binary.BigEndian.AppendUint32(e.payload, uint32(f.Column))
	}
	e.payload = binary.BigEndian.AppendUint32(e.payload, uint32(len(ex.InnerExceptions)))
	for i := range ex.InnerExceptions {
		if err := e.exception(&ex.InnerExceptions[i]); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) environment(env *domain.EnvironmentSnapshot) error {
	if env == nil {
		e.payload = append(e.payload, 0)
		return nil
	}
	e.payload = append(e.payload, 1)
	for _, s := range envStrings(env) {
		if err := e.ref(*s); err != nil {
			return err
		}
	}
	e.payload = binary.BigEndian.AppendUint32(e.payload, uint32(env.ProcessID))
	e.payload = binary.BigEndian.AppendUint32(e.payload, uint32(env.CPUCount))
	e.timestamp(env.StartTime)
	e.payload = binary.BigEndian.AppendUint64(e.payload, env.HeapAlloc)
	e.payload = binary.BigEndian.AppendUint64(e.payload, env.SysMemory)
	return nil
}

func envStrings(env *domain.EnvironmentSnapshot) []*string {
	return []*string{
		&env.OS, &env.Arch, &env.Runtime, &env.Hostname, &env.UserName,
		&env.Culture, &env.TimeZone, &env.WorkingDir, &env.Executable, &env.CommandLine,
	}
}

func (e *Encoder) optRef(s *string) error {
	if s == nil {
		e.payload = binary.BigEndian.AppendUint32(e.payload, nullWord)
		return nil
	}
	return e.ref(*s)
}

// ref writes the interned offset of s, emitting a string record on first use.
func (e *Encoder) ref(s string) error {
	id, ok := e.strings[s]
	if !ok {
		if len(s) > MaxPayload {
			return &domain.CapacityError{Size: len(s), Max: MaxPayload}
		}
		id = int32(e.offset + int64(len(e.strRecs)))
		e.strRecs = binary.BigEndian.AppendUint32(e.strRecs, packRecordHeader(RecordString, len(s)))
		e.strRecs = append(e.strRecs, s...)
		e.strings[s] = id
		e.added = append(e.added, s)
	}
	e.payload = binary.BigEndian.AppendUint32(e.payload, uint32(id))
	return nil
}
