// Package export renders log items as newline-delimited JSON and writes
// compressed archives of a merged item stream.
package export

import (
	"bufio"
	"io"
	"time"

	"github.com/valyala/fastjson"

	"github.com/V4T54L/fieldlog/internal/domain"
)

// JSONWriter writes one JSON object per item and line.
type JSONWriter struct {
	w     *bufio.Writer
	arena fastjson.Arena
	buf   []byte
}

func NewJSONWriter(w io.Writer) *JSONWriter {
	return &JSONWriter{w: bufio.NewWriter(w)}
}

func (j *JSONWriter) Write(item domain.Item) error {
	j.arena.Reset()
	j.buf = Render(&j.arena, item).MarshalTo(j.buf[:0])
	j.buf = append(j.buf, '\n')
	_, err := j.w.Write(j.buf)
	return err
}

func (j *JSONWriter) Flush() error { return j.w.Flush() }

// Render builds the JSON value of item in a.
func Render(a *fastjson.Arena, item domain.Item) *fastjson.Value {
	m := item.ItemMeta()
	o := a.NewObject()
	o.Set("kind", a.NewString(item.Kind().String()))
	o.Set("priority", a.NewString(m.Priority.String()))
	o.Set("time", a.NewString(m.Time.UTC().Format(time.RFC3339Nano)))
	o.Set("counter", a.NewNumberInt(int(m.EventCounter)))
	o.Set("session", a.NewString(m.SessionID.String()))
	o.Set("thread", a.NewNumberInt(int(m.ThreadID)))

	switch it := item.(type) {
	case *domain.TextItem:
		o.Set("text", a.NewString(it.Text))
		o.Set("details", optString(a, it.Details))
	case *domain.DataItem:
		o.Set("name", a.NewString(it.Name))
		o.Set("value", optString(a, it.Value))
	case *domain.ExceptionItem:
		o.Set("exception", exception(a, &it.Exception))
		o.Set("context", optString(a, it.Context))
		o.Set("environment", environment(a, it.Environment))
	case *domain.ScopeItem:
		o.Set("scope", a.NewString(it.Type.String()))
		o.Set("level", a.NewNumberInt(int(it.Level)))
		o.Set("name", a.NewString(it.Name))
		if it.IsRepeated {
			o.Set("repeated", a.NewTrue())
		}
		if it.Environment != nil {
			o.Set("environment", environment(a, it.Environment))
		}
	}
	return o
}

func optString(a *fastjson.Arena, s *string) *fastjson.Value {
	if s == nil {
		return a.NewNull()
	}
	return a.NewString(*s)
}

func exception(a *fastjson.Arena, ex *domain.Exception) *fastjson.Value {
	o := a.NewObject()
	o.Set("type", a.NewString(ex.Type))
	o.Set("message", a.NewString(ex.Message))
	if ex.Code != 0 {
		o.Set("code", a.NewNumberInt(int(ex.Code)))
	}
	if ex.Data != nil {
		o.Set("data", a.NewString(*ex.Data))
	}
	if len(ex.StackFrames) > 0 {
		frames := a.NewArray()
		for i, f := range ex.StackFrames {
			fo := a.NewObject()
			fo.Set("module", a.NewString(f.Module))
			fo.Set("function", a.NewString(f.Function))
			fo.Set("file", a.NewString(f.File))
			fo.Set("line", a.NewNumberInt(int(f.Line)))
			if f.Column != 0 {
				fo.Set("column", a.NewNumberInt(int(f.Column)))
			}
			frames.SetArrayItem(i, fo)
		}
		o.Set("frames", frames)
	}
	if len(ex.InnerExceptions) > 0 {
		inner := a.NewArray()
		for i := range ex.InnerExceptions {
			inner.SetArrayItem(i, exception(a, &ex.InnerExceptions[i]))
		}
		o.Set("inner", inner)
	}
	return o
}

func environment(a *fastjson.Arena, env *domain.EnvironmentSnapshot) *fastjson.Value {
	if env == nil {
		return a.NewNull()
	}
	o := a.NewObject()
	for _, kv := range [][2]string{
		{"os", env.OS}, {"arch", env.Arch}, {"runtime", env.Runtime},
		{"hostname", env.Hostname}, {"user", env.UserName}, {"culture", env.Culture},
		{"time_zone", env.TimeZone}, {"working_dir", env.WorkingDir},
		{"executable", env.Executable}, {"command_line", env.CommandLine},
	} {
		if kv[1] != "" {
			o.Set(kv[0], a.NewString(kv[1]))
		}
	}
	o.Set("pid", a.NewNumberInt(int(env.ProcessID)))
	o.Set("cpus", a.NewNumberInt(int(env.CPUCount)))
	if !env.StartTime.IsZero() {
		o.Set("start_time", a.NewString(env.StartTime.UTC().Format(time.RFC3339Nano)))
	}
	o.Set("heap_alloc", a.NewNumberFloat64(float64(env.HeapAlloc)))
	o.Set("sys_memory", a.NewNumberFloat64(float64(env.SysMemory)))
	return o
}
