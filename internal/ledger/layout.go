package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// On-disk names inside a partition directory
const (
	lockFile     = "_LOCK"
	currentFile  = "_CURRENT"
	sealedFile   = "_SEALED"
	manifestFile = "_manifest.json"
	archiveDir   = "_archive"
	lateSuffix   = "-late"
)

// Segment rollover limits
const (
	MaxSegmentSizeBytes = 10 << 20 // 10 MiB
	MaxSegmentRecords   = 10000
)

var segmentPattern = regexp.MustCompile(`^signals-(\d{3})\.wal$`)
var partitionPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}(-late)?$`)

// PartitionName formats the directory name for a UTC date
func PartitionName(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// SegmentName formats the filename of the given segment ordinal
func SegmentName(ordinal int) string {
	return fmt.Sprintf("signals-%03d.wal", ordinal)
}

// SegmentOrdinal parses the ordinal out of a segment filename
func SegmentOrdinal(name string) (int, bool) {
	m := segmentPattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Sequence composes a ledger sequence from segment ordinal and record
// index: (ordinal << 32) | index. Strictly increasing within a partition
// across rollovers and restarts.
func Sequence(segmentOrdinal int, recordIndex int) uint64 {
	return uint64(segmentOrdinal)<<32 | uint64(uint32(recordIndex))
}

// IsLatePartition reports whether a partition name carries the late suffix
func IsLatePartition(name string) bool {
	return strings.HasSuffix(name, lateSuffix)
}

// IsSealed reports whether the partition directory contains a seal marker
func IsSealed(partitionDir string) bool {
	_, err := os.Stat(filepath.Join(partitionDir, sealedFile))
	return err == nil
}

// ListSegments returns segment filenames in a partition, ordinal order
func ListSegments(partitionDir string) ([]string, error) {
	entries, err := os.ReadDir(partitionDir)
	if err != nil {
		return nil, err
	}

	var segments []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := SegmentOrdinal(e.Name()); ok {
			segments = append(segments, e.Name())
		}
	}
	sort.Strings(segments)
	return segments, nil
}

// ListPartitions returns partition directory names under base, sorted
func ListPartitions(base string) ([]string, error) {
	entries, err := os.ReadDir(base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var partitions []string
	for _, e := range entries {
		if e.IsDir() && partitionPattern.MatchString(e.Name()) {
			partitions = append(partitions, e.Name())
		}
	}
	sort.Strings(partitions)
	return partitions, nil
}
