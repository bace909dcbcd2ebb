// Package watchers holds small background housekeeping loops that sit
// alongside the main pipeline, logging rather than failing when
// resources run low. Grounded on the call site in
// controler/pipeline.go's watchers.WatchDiskSpace/StopDiskWatcher.
package watchers

import (
	"sync"
	"syscall"
	"time"

	"github.com/archivetheweb/atwworker/internal/pkg/log"
)

var (
	diskWatcherOnce sync.Once
	diskWatcherStop chan struct{}
)

// lowDiskThresholdBytes is the free-space floor under which
// WatchDiskSpace starts logging warnings every tick.
const lowDiskThresholdBytes = 1 << 30 // 1 GiB

// WatchDiskSpace polls path's filesystem every interval and logs a
// warning whenever free space drops below lowDiskThresholdBytes. It runs
// until StopDiskWatcher is called; only the first call in the process
// starts a goroutine, so later calls are no-ops.
func WatchDiskSpace(path string, interval time.Duration) {
	diskWatcherOnce.Do(func() {
		diskWatcherStop = make(chan struct{})
		logger := log.NewFieldedLogger(&log.Fields{"component": "watchers.disk"})

		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				select {
				case <-diskWatcherStop:
					return
				case <-ticker.C:
					free, err := freeBytes(path)
					if err != nil {
						logger.Warn("unable to stat writer directory filesystem", "path", path, "err", err.Error())
						continue
					}
					if free < lowDiskThresholdBytes {
						logger.Warn("writer directory filesystem is low on space", "path", path, "free_bytes", free)
					}
				}
			}
		}()
	})
}

// StopDiskWatcher stops a watcher started by WatchDiskSpace. Safe to call
// even if no watcher was started.
func StopDiskWatcher() {
	if diskWatcherStop != nil {
		close(diskWatcherStop)
	}
}

// freeBytes reports the free space available on the filesystem backing
// path. There is no cross-platform disk-usage library anywhere in the
// example pack, so this uses syscall.Statfs directly (Linux-only, same
// as the worker's deployment target) rather than fabricating a
// dependency — see DESIGN.md.
func freeBytes(path string) (uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
