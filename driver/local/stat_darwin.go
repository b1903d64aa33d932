//go:build darwin

package local

import (
	"os"
	"syscall"
	"time"
)

// birthTime extracts the creation time on macOS.
func birthTime(info os.FileInfo) (time.Time, bool) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return time.Time{}, false
	}
	t := time.Unix(stat.Birthtimespec.Sec, stat.Birthtimespec.Nsec)
	if t.Unix() == 0 {
		return time.Time{}, false
	}
	return t, true
}
