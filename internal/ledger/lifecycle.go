package ledger

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// LifecycleConfig controls the scheduled partition maintenance pass
type LifecycleConfig struct {
	AutoSealAfterHours int `yaml:"auto_seal_after_hours"`
	SealGraceHours     int `yaml:"seal_grace_hours"`
	LateSealAfterDays  int `yaml:"late_seal_after_days"`
	CompressAfterDays  int `yaml:"compress_after_days"`
	ColdRetentionDays  int `yaml:"cold_retention_days"`
	DeleteAfterDays    int `yaml:"delete_after_days"` // 0 disables deletion
}

// DefaultLifecycleConfig returns conservative retention defaults
func DefaultLifecycleConfig() LifecycleConfig {
	return LifecycleConfig{
		AutoSealAfterHours: 24,
		SealGraceHours:     6,
		LateSealAfterDays:  3,
		CompressAfterDays:  7,
		ColdRetentionDays:  30,
		DeleteAfterDays:    0,
	}
}

// LifecycleReport lists the partitions touched by each step of a run
type LifecycleReport struct {
	Sealed     []string `json:"sealed,omitempty"`
	Compressed []string `json:"compressed,omitempty"`
	Archived   []string `json:"archived,omitempty"`
	Deleted    []string `json:"deleted,omitempty"`
	Errors     []string `json:"errors,omitempty"`
}

// Lifecycle runs seal, compress, archive, and delete passes over the
// ledger directory. Errors on one partition are recorded and do not abort
// the run.
type Lifecycle struct {
	base   string
	config LifecycleConfig
	writer *Writer
	now    func() time.Time
}

// NewLifecycle creates a lifecycle manager over the ledger base path
func NewLifecycle(base string, config LifecycleConfig) *Lifecycle {
	return &Lifecycle{
		base:   base,
		config: config,
		writer: NewWriter(base),
		now:    time.Now,
	}
}

// Run executes the full pass in order: seal, compress, archive, delete
func (l *Lifecycle) Run() LifecycleReport {
	var report LifecycleReport

	l.sealPass(&report)
	l.compressPass(&report)
	l.archivePass(&report)
	l.deletePass(&report)

	log.Info().
		Int("sealed", len(report.Sealed)).
		Int("compressed", len(report.Compressed)).
		Int("archived", len(report.Archived)).
		Int("deleted", len(report.Deleted)).
		Int("errors", len(report.Errors)).
		Msg("Ledger lifecycle pass complete")

	return report
}

func (l *Lifecycle) sealPass(report *LifecycleReport) {
	partitions, err := ListPartitions(l.base)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("seal: %v", err))
		return
	}

	now := l.now().UTC()
	for _, partition := range partitions {
		dir := filepath.Join(l.base, partition)
		if IsSealed(dir) {
			continue
		}

		date, err := time.Parse("2006-01-02", strings.TrimSuffix(partition, lateSuffix))
		if err != nil {
			continue
		}

		var deadline time.Time
		if IsLatePartition(partition) {
			deadline = date.Add(time.Duration(l.config.LateSealAfterDays) * 24 * time.Hour)
		} else {
			deadline = date.Add(time.Duration(l.config.AutoSealAfterHours+l.config.SealGraceHours) * time.Hour)
		}

		if now.Before(deadline) {
			continue
		}

		if err := l.writer.SealPartition(partition); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("seal %s: %v", partition, err))
			continue
		}
		report.Sealed = append(report.Sealed, partition)
	}
}

func (l *Lifecycle) compressPass(report *LifecycleReport) {
	partitions, err := ListPartitions(l.base)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("compress: %v", err))
		return
	}

	for _, partition := range partitions {
		dir := filepath.Join(l.base, partition)
		if !IsSealed(dir) || !l.olderThanDays(partition, l.config.CompressAfterDays) {
			continue
		}

		segments, err := ListSegments(dir)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("compress %s: %v", partition, err))
			continue
		}

		compressedAny := false
		for _, segment := range segments {
			if err := compressSegment(filepath.Join(dir, segment)); err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("compress %s/%s: %v", partition, segment, err))
				continue
			}
			compressedAny = true
		}
		if compressedAny {
			report.Compressed = append(report.Compressed, partition)
		}
	}
}

func (l *Lifecycle) archivePass(report *LifecycleReport) {
	partitions, err := ListPartitions(l.base)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("archive: %v", err))
		return
	}

	archive := filepath.Join(l.base, archiveDir)
	for _, partition := range partitions {
		dir := filepath.Join(l.base, partition)
		if !IsSealed(dir) || !l.olderThanDays(partition, l.config.ColdRetentionDays) {
			continue
		}

		if err := os.MkdirAll(archive, 0o755); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("archive: %v", err))
			return
		}

		target := filepath.Join(archive, partition+".tar.gz")
		if err := tarPartition(dir, target); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("archive %s: %v", partition, err))
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("archive cleanup %s: %v", partition, err))
			continue
		}
		report.Archived = append(report.Archived, partition)
	}
}

func (l *Lifecycle) deletePass(report *LifecycleReport) {
	if l.config.DeleteAfterDays <= 0 {
		return
	}

	// Live partitions past the delete horizon
	partitions, err := ListPartitions(l.base)
	if err == nil {
		for _, partition := range partitions {
			if !l.olderThanDays(partition, l.config.DeleteAfterDays) {
				continue
			}
			if err := os.RemoveAll(filepath.Join(l.base, partition)); err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("delete %s: %v", partition, err))
				continue
			}
			report.Deleted = append(report.Deleted, partition)
		}
	}

	// Archived tarballs past the delete horizon
	entries, err := os.ReadDir(filepath.Join(l.base, archiveDir))
	if err != nil {
		return
	}
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".tar.gz")
		if !l.olderThanDays(name, l.config.DeleteAfterDays) {
			continue
		}
		if err := os.Remove(filepath.Join(l.base, archiveDir, e.Name())); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("delete archive %s: %v", e.Name(), err))
			continue
		}
		report.Deleted = append(report.Deleted, name)
	}
}

func (l *Lifecycle) olderThanDays(partition string, days int) bool {
	date, err := time.Parse("2006-01-02", strings.TrimSuffix(partition, lateSuffix))
	if err != nil {
		return false
	}
	return l.now().UTC().Sub(date) > time.Duration(days)*24*time.Hour
}

// compressSegment gzips a sealed segment, replacing the original only
// after the compressed copy verifies as readable and non-empty.
func compressSegment(path string) error {
	target := path + ".gz"

	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	tmp := target + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}

	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, src); err != nil {
		gz.Close()
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := gz.Close(); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	if err := verifyGzip(tmp); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("verify compressed segment: %w", err)
	}

	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return err
	}
	syncDir(filepath.Dir(target))

	return os.Remove(path)
}

func verifyGzip(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return fmt.Errorf("compressed file is empty")
	}

	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()

	_, err = io.Copy(io.Discard, gz)
	return err
}

// tarPartition writes the partition directory into a single tar.gz
func tarPartition(dir, target string) error {
	tmp := target + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	err = filepath.Walk(dir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(filepath.Dir(dir), path)
		if err != nil {
			return err
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(header); err != nil {
			return err
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = io.Copy(tw, f)
		return err
	})

	if cerr := tw.Close(); err == nil {
		err = cerr
	}
	if cerr := gz.Close(); err == nil {
		err = cerr
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return err
	}
	syncDir(filepath.Dir(target))
	return nil
}
