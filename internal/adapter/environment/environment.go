// Package environment captures the process and host facts attached to
// LogStart scopes and exceptions.
package environment

import (
	"os"
	"os/user"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/procfs"
	"golang.org/x/text/language"

	"github.com/V4T54L/fieldlog/internal/domain"
)

var (
	startOnce sync.Once
	startTime time.Time
)

// Capture takes a snapshot of the current process. Facts that cannot be
// determined are left empty.
func Capture() *domain.EnvironmentSnapshot {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	env := &domain.EnvironmentSnapshot{
		OS:          runtime.GOOS,
		Arch:        runtime.GOARCH,
		Runtime:     runtime.Version(),
		Culture:     Culture(),
		CommandLine: strings.Join(os.Args, " "),
		ProcessID:   int32(os.Getpid()),
		CPUCount:    int32(runtime.NumCPU()),
		StartTime:   processStart(),
		HeapAlloc:   mem.HeapAlloc,
		SysMemory:   mem.Sys,
	}
	env.Hostname, _ = os.Hostname()
	env.WorkingDir, _ = os.Getwd()
	env.Executable, _ = os.Executable()
	if u, err := user.Current(); err == nil {
		env.UserName = u.Username
	}
	env.TimeZone = time.Now().Format("MST -07:00")
	return env
}

// processStart reads the start time from /proc where available and otherwise
// uses the time of the first capture.
func processStart() time.Time {
	startOnce.Do(func() {
		startTime = time.Now().UTC()
		p, err := procfs.Self()
		if err != nil {
			return
		}
		stat, err := p.Stat()
		if err != nil {
			return
		}
		secs, err := stat.StartTime()
		if err != nil {
			return
		}
		startTime = time.Unix(0, int64(secs*float64(time.Second))).UTC()
	})
	return startTime
}

// Culture returns the BCP 47 tag of the process locale taken from LC_ALL,
// LC_MESSAGES or LANG, or "und" when none is set.
func Culture() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		v := os.Getenv(key)
		if v == "" || v == "C" || v == "POSIX" {
			continue
		}
		// en_US.UTF-8@euro -> en-US
		v, _, _ = strings.Cut(v, ".")
		v, _, _ = strings.Cut(v, "@")
		if tag, err := language.Parse(strings.ReplaceAll(v, "_", "-")); err == nil {
			return tag.String()
		}
	}
	return language.Und.String()
}
