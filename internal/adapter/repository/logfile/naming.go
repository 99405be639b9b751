package logfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/V4T54L/fieldlog/internal/domain"
)

const (
	fileExt  = ".fl"
	filePerm = 0644
	dirPerm  = 0755
)

// FileName builds the file name for a priority created at the given tick
// count. Ticks are zero padded so that lexical order is creation order.
func FileName(basePath string, prio domain.Priority, ticks int64) string {
	return fmt.Sprintf("%s-%d-%019d%s", basePath, prio, ticks, fileExt)
}

// ParseName extracts priority and creation time from a file name belonging to
// the group with the given base name (the last element of the base path).
func ParseName(baseName, name string) (domain.Priority, time.Time, bool) {
	rest, ok := strings.CutPrefix(name, baseName+"-")
	if !ok {
		return 0, time.Time{}, false
	}
	rest, ok = strings.CutSuffix(rest, fileExt)
	if !ok {
		return 0, time.Time{}, false
	}
	prioPart, ticksPart, ok := strings.Cut(rest, "-")
	if !ok || len(prioPart) != 1 || len(ticksPart) != 19 {
		return 0, time.Time{}, false
	}
	p, err := strconv.Atoi(prioPart)
	if err != nil || p < 0 || p >= domain.PriorityCount {
		return 0, time.Time{}, false
	}
	ticks, err := strconv.ParseInt(ticksPart, 10, 64)
	if err != nil {
		return 0, time.Time{}, false
	}
	return domain.Priority(p), time.Unix(0, ticks).UTC(), true
}

// listFiles returns the group's files sorted by creation, optionally limited
// to one priority (prio < 0 means all).
func listFiles(basePath string, prio int) ([]domain.LogFile, error) {
	dir, baseName := filepath.Split(basePath)
	if dir == "" {
		dir = "."
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read log directory %s: %w", dir, err)
	}

	var files []domain.LogFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		p, created, ok := ParseName(baseName, entry.Name())
		if !ok || (prio >= 0 && int(p) != prio) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Purged between listing and stat.
			continue
		}
		files = append(files, domain.LogFile{
			Path:     filepath.Join(dir, entry.Name()),
			Priority: p,
			Created:  created,
			Size:     info.Size(),
			ModTime:  info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool {
		if !files[i].Created.Equal(files[j].Created) {
			return files[i].Created.Before(files[j].Created)
		}
		return files[i].Path < files[j].Path
	})
	return files, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
