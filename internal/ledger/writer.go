package ledger

import (
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/omen-systems/omen/internal/domain"
)

// ErrPartitionSealed is returned when a write targets a sealed late
// partition. Sealed day partitions promote to "-late"; sealed late
// partitions are terminal.
var ErrPartitionSealed = errors.New("partition is sealed")

// Writer appends signal events to the ledger. It holds no file handles
// between calls: every write locks the partition, appends one durable
// frame, and releases. Safe for use from one process; the partition lock
// serializes writers across processes.
type Writer struct {
	base         string
	maxSegBytes  int64
	maxSegRecs   int
	recordCounts map[string]int // segment path -> known record count
	now          func() time.Time
}

// NewWriter creates a writer rooted at the ledger base path
func NewWriter(base string) *Writer {
	return &Writer{
		base:         base,
		maxSegBytes:  MaxSegmentSizeBytes,
		maxSegRecs:   MaxSegmentRecords,
		recordCounts: make(map[string]int),
		now:          time.Now,
	}
}

// Write appends the event to its partition and returns it annotated with
// ledger placement. A ledger failure leaves the event unannotated and is
// terminal for the caller's emit.
func (w *Writer) Write(event domain.SignalEvent) (domain.SignalEvent, error) {
	partition := PartitionName(event.EmittedAt)
	dir := filepath.Join(w.base, partition)

	// Late-arrival promotion: a sealed day partition stays immutable
	if IsSealed(dir) {
		partition += lateSuffix
		dir = filepath.Join(w.base, partition)
		if IsSealed(dir) {
			return event, fmt.Errorf("%w: %s", ErrPartitionSealed, partition)
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return event, fmt.Errorf("create partition %s: %w", partition, err)
	}

	lock, err := acquirePartitionLock(dir)
	if err != nil {
		return event, err
	}
	defer lock.release()

	segment, ordinal, err := w.currentSegment(dir)
	if err != nil {
		return event, err
	}

	segPath := filepath.Join(dir, segment)
	count, err := w.recordCount(segPath)
	if err != nil {
		return event, err
	}

	recordIndex := count + 1
	event.LedgerPartition = partition
	event.LedgerSequence = Sequence(ordinal, recordIndex)
	event.LedgerWrittenAt = w.now().UTC()

	payload, err := domain.CanonicalJSON(event)
	if err != nil {
		return event, fmt.Errorf("encode ledger record: %w", err)
	}

	if err := w.appendFrame(segPath, payload); err != nil {
		return event, err
	}
	w.recordCounts[segPath] = recordIndex

	if err := w.maybeRollover(dir, segPath, segment, ordinal, recordIndex); err != nil {
		return event, err
	}

	log.Debug().
		Str("partition", partition).
		Uint64("sequence", event.LedgerSequence).
		Str("signal_id", event.SignalID).
		Msg("Ledger write")

	return event, nil
}

// SealPartition makes every segment immutable, writes the manifest, and
// drops the seal marker. Idempotent: sealing a sealed partition is a no-op.
func (w *Writer) SealPartition(partition string) error {
	dir := filepath.Join(w.base, partition)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("partition %s: %w", partition, err)
	}
	if IsSealed(dir) {
		return nil
	}

	lock, err := acquirePartitionLock(dir)
	if err != nil {
		return err
	}
	defer lock.release()

	segments, err := ListSegments(dir)
	if err != nil {
		return err
	}

	sealedAt := w.now().UTC()
	manifest := Manifest{
		SchemaVersion:    ManifestSchemaVersion,
		PartitionDate:    strings.TrimSuffix(partition, lateSuffix),
		SealedAt:         sealedAt,
		ManifestRevision: 1,
		IsLatePartition:  IsLatePartition(partition),
	}

	for _, segment := range segments {
		segPath := filepath.Join(dir, segment)

		count, err := w.recordCount(segPath)
		if err != nil {
			return err
		}

		info, err := os.Stat(segPath)
		if err != nil {
			return err
		}

		sum, err := fileChecksum(segPath)
		if err != nil {
			return err
		}

		if err := os.Chmod(segPath, 0o444); err != nil {
			log.Warn().Err(err).Str("segment", segment).Msg("Cannot mark segment read-only")
		}

		ordinal, _ := SegmentOrdinal(segment)
		seq := Sequence(ordinal, count)
		if seq > manifest.HighwaterSequence {
			manifest.HighwaterSequence = seq
		}

		manifest.TotalRecords += count
		manifest.Segments = append(manifest.Segments, SegmentSummary{
			File:        segment,
			RecordCount: count,
			SizeBytes:   info.Size(),
			Checksum:    SegmentChecksum(sum),
		})
	}

	if err := writeManifest(dir, manifest); err != nil {
		return err
	}

	if err := writeFileAtomic(filepath.Join(dir, sealedFile), []byte(sealedAt.Format(time.RFC3339)), 0o644); err != nil {
		return err
	}

	log.Info().
		Str("partition", partition).
		Int("records", manifest.TotalRecords).
		Uint64("highwater", manifest.HighwaterSequence).
		Msg("Partition sealed")

	return nil
}

// FlushAndClose finalizes the writer. Writes are already durable per call;
// this only clears cached state.
func (w *Writer) FlushAndClose() error {
	w.recordCounts = make(map[string]int)
	return nil
}

// currentSegment resolves the writable segment for a partition, honoring
// _CURRENT when it names a writable file and repairing it otherwise.
func (w *Writer) currentSegment(dir string) (string, int, error) {
	currentPath := filepath.Join(dir, currentFile)

	if data, err := os.ReadFile(currentPath); err == nil {
		name := strings.TrimSpace(string(data))
		if ordinal, ok := SegmentOrdinal(name); ok && w.segmentWritable(filepath.Join(dir, name)) {
			return name, ordinal, nil
		}
	}

	segments, err := ListSegments(dir)
	if err != nil {
		return "", 0, err
	}

	// Prefer the highest writable segment; otherwise start the next one
	next := 1
	for i := len(segments) - 1; i >= 0; i-- {
		ordinal, _ := SegmentOrdinal(segments[i])
		if w.segmentWritable(filepath.Join(dir, segments[i])) {
			if err := w.setCurrent(dir, segments[i]); err != nil {
				return "", 0, err
			}
			return segments[i], ordinal, nil
		}
		if ordinal >= next {
			next = ordinal + 1
		}
	}

	name := SegmentName(next)
	if err := w.setCurrent(dir, name); err != nil {
		return "", 0, err
	}
	return name, next, nil
}

// segmentWritable reports whether a segment can still take frames: it must
// exist (or be new), be owner-writable, and be under the rollover limits.
func (w *Writer) segmentWritable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return os.IsNotExist(err)
	}
	if info.Mode().Perm()&0o200 == 0 {
		return false
	}
	if info.Size() >= w.maxSegBytes {
		return false
	}
	count, err := w.recordCount(path)
	if err != nil {
		return false
	}
	return count < w.maxSegRecs
}

func (w *Writer) setCurrent(dir, segment string) error {
	return writeFileAtomic(filepath.Join(dir, currentFile), []byte(segment+"\n"), 0o644)
}

// recordCount returns the number of complete frames in a segment,
// scanning once and caching the result for the writer's lifetime. A torn
// tail left by a crash is truncated away so later appends stay framed.
func (w *Writer) recordCount(path string) (int, error) {
	if count, ok := w.recordCounts[path]; ok {
		return count, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			w.recordCounts[path] = 0
			return 0, nil
		}
		return 0, err
	}
	defer f.Close()

	count := 0
	var offset int64
	for {
		payload, err := ReadFrame(f, false)
		if err == io.EOF {
			break
		}
		if errors.Is(err, ErrTruncatedFrame) {
			if terr := os.Truncate(path, offset); terr != nil {
				log.Warn().Err(terr).Str("segment", path).Msg("Cannot trim torn segment tail")
			} else {
				log.Warn().Str("segment", path).Int64("offset", offset).Msg("Trimmed torn segment tail")
			}
			break
		}
		if err != nil {
			return 0, fmt.Errorf("scan segment %s: %w", path, err)
		}
		offset += frameHeaderSize + int64(len(payload))
		count++
	}

	w.recordCounts[path] = count
	return count, nil
}

func (w *Writer) appendFrame(path string, payload []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open segment: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(EncodeFrame(payload)); err != nil {
		return fmt.Errorf("append frame: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("fsync segment: %w", err)
	}
	return nil
}

// maybeRollover seals a full segment and points _CURRENT at the next one
func (w *Writer) maybeRollover(dir, segPath, segment string, ordinal, records int) error {
	info, err := os.Stat(segPath)
	if err != nil {
		return err
	}

	if info.Size() < w.maxSegBytes && records < w.maxSegRecs {
		return nil
	}

	if err := os.Chmod(segPath, 0o444); err != nil {
		log.Warn().Err(err).Str("segment", segment).Msg("Cannot mark rolled segment read-only")
	}

	next := SegmentName(ordinal + 1)
	if err := w.setCurrent(dir, next); err != nil {
		return err
	}

	log.Info().
		Str("sealed", segment).
		Str("next", next).
		Int64("size_bytes", info.Size()).
		Int("records", records).
		Msg("Segment rollover")

	return nil
}

func fileChecksum(path string) (uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	h := crc32.NewIEEE()
	if _, err := io.Copy(h, f); err != nil {
		return 0, err
	}
	return h.Sum32(), nil
}
