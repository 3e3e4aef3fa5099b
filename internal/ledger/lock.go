package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// partitionLock holds the exclusive advisory lock on a partition directory.
// The single-writer invariant per partition rests on this lock.
type partitionLock struct {
	file *os.File
}

// acquirePartitionLock takes the exclusive _LOCK in the partition directory,
// blocking until it is available.
func acquirePartitionLock(partitionDir string) (*partitionLock, error) {
	path := filepath.Join(partitionDir, lockFile)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open partition lock: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("acquire partition lock: %w", err)
	}

	return &partitionLock{file: f}, nil
}

func (l *partitionLock) release() {
	if l == nil || l.file == nil {
		return
	}
	syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	l.file.Close()
	l.file = nil
}
