package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/V4T54L/fieldlog/internal/domain"
)

func TestByteSize(t *testing.T) {
	tests := []struct {
		in   string
		want ByteSize
	}{
		{"1024", 1024},
		{"4k", 4 * KiB},
		{"3M", 3 * MiB},
		{" 2g ", 2 * GiB},
		{"512kb", 512 * KiB},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var b ByteSize
			assert.NilError(t, b.UnmarshalText([]byte(tt.in)))
			assert.Equal(t, b, tt.want)
		})
	}

	var b ByteSize
	assert.ErrorContains(t, b.UnmarshalText([]byte("lots")), "invalid byte size")
	assert.ErrorContains(t, b.UnmarshalText([]byte("-1k")), "invalid byte size")
	assert.Equal(t, (2 * GiB).String(), "2g")
	assert.Equal(t, ByteSize(1500).String(), "1500")
}

func TestKeepTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"90", 90 * time.Second},
		{"90s", 90 * time.Second},
		{"15m", 15 * time.Minute},
		{"3h", 3 * time.Hour},
		{"5D", 5 * 24 * time.Hour},
		{"0", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var k KeepTime
			assert.NilError(t, k.UnmarshalText([]byte(tt.in)))
			assert.Equal(t, time.Duration(k), tt.want)
		})
	}

	var k KeepTime
	assert.ErrorContains(t, k.UnmarshalText([]byte("3w")), "invalid keep time")
	assert.Equal(t, KeepTime(30*24*time.Hour).String(), "30d")
	assert.Equal(t, KeepTime(3*time.Hour).String(), "3h")
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	keep := cfg.Keep()
	assert.Equal(t, keep[domain.PriorityTrace], 3*time.Hour)
	assert.Equal(t, keep[domain.PriorityCheckpoint], 3*time.Hour)
	assert.Equal(t, keep[domain.PriorityInfo], 5*24*time.Hour)
	assert.Equal(t, keep[domain.PriorityNotice], 5*24*time.Hour)
	for _, p := range []domain.Priority{domain.PriorityWarning, domain.PriorityError, domain.PriorityCritical} {
		assert.Equal(t, keep[p], 30*24*time.Hour, p.String())
	}
	assert.Equal(t, cfg.MaxFileSize, MiB)
	assert.Equal(t, cfg.MaxTotalSize, 2*GiB)
}

func TestParse(t *testing.T) {
	t.Run("valid file", func(t *testing.T) {
		cfg, err := Parse(strings.NewReader(`
# comment
Path = /var/log/app/app
MAXFILESIZE=4m
maxtotalsize=1g
keeptrace=0
KeepError=7d
keep2=12h
this line has no separator
unknown=value
keepnobody=1h
redact = email, ssn ,
`))
		assert.NilError(t, err)
		assert.Equal(t, cfg.Path, "/var/log/app/app")
		assert.Equal(t, cfg.MaxFileSize, 4*MiB)
		assert.Equal(t, cfg.MaxTotalSize, GiB)
		keep := cfg.Keep()
		assert.Equal(t, keep[domain.PriorityTrace], time.Duration(0))
		assert.Equal(t, keep[domain.PriorityError], 7*24*time.Hour)
		assert.Equal(t, keep[domain.PriorityInfo], 12*time.Hour)
		assert.Equal(t, keep[domain.PriorityCheckpoint], 3*time.Hour)
		assert.DeepEqual(t, cfg.Redact, []string{"email", "ssn"})
	})

	t.Run("malformed value resets everything", func(t *testing.T) {
		cfg, err := Parse(strings.NewReader("maxfilesize=8m\nkeepinfo=soon\n"))
		assert.Assert(t, errors.Is(err, ErrMalformed))
		var malformed *MalformedError
		assert.Assert(t, errors.As(err, &malformed))
		assert.Equal(t, malformed.Line, 2)
		assert.Equal(t, malformed.Key, "keepinfo")
		assert.DeepEqual(t, cfg, Default())
	})
}

func TestWriteToRoundTrips(t *testing.T) {
	cfg := Default()
	cfg.Path = "/tmp/x/app"
	cfg.KeepNotice = 0
	cfg.Redact = []string{"password", "token"}

	var b strings.Builder
	_, err := cfg.WriteTo(&b)
	assert.NilError(t, err)
	assert.Assert(t, is.Contains(b.String(), "keepnotice=0\n"))

	back, err := Parse(strings.NewReader(b.String()))
	assert.NilError(t, err)
	assert.DeepEqual(t, back, cfg)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "service.exe")
	assert.Equal(t, FileName(exe), filepath.Join(dir, "service.flconfig"))

	t.Run("missing file gives defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(dir, "other"))
		assert.NilError(t, err)
		assert.Equal(t, cfg.MaxFileSize, MiB)
	})

	err := os.WriteFile(FileName(exe), []byte("maxfilesize=2m\nkeepwarning=1d\n"), 0o644)
	assert.NilError(t, err)

	t.Run("environment overrides file", func(t *testing.T) {
		t.Setenv("FIELDLOG_MAX_FILE_SIZE", "16k")
		t.Setenv("FIELDLOG_KEEP_TRACE", "30m")
		t.Setenv("FIELDLOG_LOG_LEVEL", "debug")
		cfg, err := Load(exe)
		assert.NilError(t, err)
		assert.Equal(t, cfg.MaxFileSize, 16*KiB)
		assert.Equal(t, time.Duration(cfg.KeepTrace), 30*time.Minute)
		assert.Equal(t, time.Duration(cfg.KeepWarning), 24*time.Hour)
		assert.Equal(t, cfg.LogLevel, "debug")
	})

	t.Run("bad environment value fails", func(t *testing.T) {
		t.Setenv("FIELDLOG_MAX_TOTAL_SIZE", "huge")
		_, err := Load(exe)
		assert.ErrorContains(t, err, "failed to parse environment")
	})

	t.Run("malformed file warns and uses defaults", func(t *testing.T) {
		bad := filepath.Join(dir, "bad")
		assert.NilError(t, os.WriteFile(FileName(bad), []byte("maxtotalsize=??\n"), 0o644))
		cfg, err := Load(bad)
		assert.Assert(t, errors.Is(err, ErrMalformed))
		assert.Assert(t, cfg != nil)
		assert.Equal(t, cfg.MaxTotalSize, 2*GiB)
	})
}

func TestBasePaths(t *testing.T) {
	cfg := Default()
	exe := filepath.Join("/opt", "svc", "worker.exe")

	paths := cfg.BasePaths(exe)
	assert.Equal(t, paths[0], filepath.Join("/opt", "svc", "log", "worker"))
	assert.Equal(t, paths[len(paths)-1], filepath.Join(os.TempDir(), "fieldlog", "worker"))

	cfg.Path = "/data/logs/worker"
	assert.Equal(t, cfg.BasePaths(exe)[0], "/data/logs/worker")
}
