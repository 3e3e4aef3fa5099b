package ledger

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// writeFileAtomic writes data durably: temp file in the same directory,
// fsync the temp, rename over the target, fsync the parent directory.
// On platforms that cannot fsync a directory the failure is logged as a
// durability warning rather than returned.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}

	syncDir(dir)
	return nil
}

// syncDir fsyncs a directory so a rename is durable
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("Durability degraded: cannot open directory for fsync")
		return
	}
	defer d.Close()

	if err := d.Sync(); err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("Durability degraded: directory fsync failed")
	}
}
