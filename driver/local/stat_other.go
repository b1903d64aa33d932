//go:build !linux && !darwin && !windows

package local

import (
	"os"
	"time"
)

func birthTime(info os.FileInfo) (time.Time, bool) {
	return time.Time{}, false
}
