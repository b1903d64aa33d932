//go:build windows

package local

import (
	"os"
	"syscall"
	"time"
)

// birthTime extracts the creation time on Windows, which records it natively.
func birthTime(info os.FileInfo) (time.Time, bool) {
	data, ok := info.Sys().(*syscall.Win32FileAttributeData)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(0, data.CreationTime.Nanoseconds()), true
}
