//go:build !unix && !windows

package logfile

import "os"

func lockFile(*os.File) error { return nil }
