package ledger

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/omen-systems/omen/internal/domain"
)

// Reader reads signal events back out of the ledger. It tolerates
// truncated tails (crash recovery) and skips checksum or parse failures
// without aborting the partition.
type Reader struct {
	base string
}

// NewReader creates a reader rooted at the ledger base path
func NewReader(base string) *Reader {
	return &Reader{base: base}
}

// ListPartitions returns every partition name under the base, sorted
func (r *Reader) ListPartitions() ([]string, error) {
	return ListPartitions(r.base)
}

// IsPartitionSealed reports whether the named partition is sealed
func (r *Reader) IsPartitionSealed(partition string) bool {
	return IsSealed(filepath.Join(r.base, partition))
}

// ReadPartition returns every recoverable record in a partition, segment
// order. With includeLate, the matching "-late" partition is appended.
func (r *Reader) ReadPartition(partition string, validate, includeLate bool) ([]domain.SignalEvent, error) {
	events, err := r.readOne(partition, validate)
	if err != nil {
		return nil, err
	}

	if includeLate && !IsLatePartition(partition) {
		late, err := r.readOne(partition+lateSuffix, validate)
		if err == nil {
			events = append(events, late...)
		} else if !os.IsNotExist(errors.Unwrap(err)) && !os.IsNotExist(err) {
			return nil, err
		}
	}

	return events, nil
}

// GetSignal finds a signal by id within a partition (late included)
func (r *Reader) GetSignal(partition, signalID string) (*domain.SignalEvent, error) {
	events, err := r.ReadPartition(partition, true, true)
	if err != nil {
		return nil, err
	}
	for i := range events {
		if events[i].SignalID == signalID {
			return &events[i], nil
		}
	}
	return nil, fmt.Errorf("signal %s not found in partition %s", signalID, partition)
}

// QueryByTimeRange returns events whose emitted_at falls in [start, end),
// scanning only partitions whose date can overlap.
func (r *Reader) QueryByTimeRange(start, end time.Time) ([]domain.SignalEvent, error) {
	partitions, err := r.ListPartitions()
	if err != nil {
		return nil, err
	}

	startDate := PartitionName(start)
	endDate := PartitionName(end)

	var out []domain.SignalEvent
	for _, partition := range partitions {
		date := strings.TrimSuffix(partition, lateSuffix)
		if date < startDate || date > endDate {
			continue
		}
		events, err := r.readOne(partition, true)
		if err != nil {
			return nil, err
		}
		for _, ev := range events {
			if !ev.EmittedAt.Before(start) && ev.EmittedAt.Before(end) {
				out = append(out, ev)
			}
		}
	}
	return out, nil
}

// QueryByTraceIDs returns events matching any of the given trace ids
func (r *Reader) QueryByTraceIDs(traceIDs []string) ([]domain.SignalEvent, error) {
	want := make(map[string]bool, len(traceIDs))
	for _, id := range traceIDs {
		want[id] = true
	}

	partitions, err := r.ListPartitions()
	if err != nil {
		return nil, err
	}

	var out []domain.SignalEvent
	for _, partition := range partitions {
		events, err := r.readOne(partition, true)
		if err != nil {
			return nil, err
		}
		for _, ev := range events {
			if want[ev.TraceID] {
				out = append(out, ev)
			}
		}
	}
	return out, nil
}

// QueryByCategory returns events of a category across a date range
func (r *Reader) QueryByCategory(cat domain.Category, startDate, endDate string) ([]domain.SignalEvent, error) {
	partitions, err := r.ListPartitions()
	if err != nil {
		return nil, err
	}

	var out []domain.SignalEvent
	for _, partition := range partitions {
		date := strings.TrimSuffix(partition, lateSuffix)
		if (startDate != "" && date < startDate) || (endDate != "" && date > endDate) {
			continue
		}
		events, err := r.readOne(partition, true)
		if err != nil {
			return nil, err
		}
		for _, ev := range events {
			if ev.Category == cat {
				out = append(out, ev)
			}
		}
	}
	return out, nil
}

// PartitionHighwater returns the highest ledger sequence in a partition
// plus the manifest revision (0 if unsealed).
func (r *Reader) PartitionHighwater(partition string) (uint64, int, error) {
	dir := filepath.Join(r.base, partition)

	if IsSealed(dir) {
		m, err := ReadManifest(dir)
		if err == nil {
			return m.HighwaterSequence, m.ManifestRevision, nil
		}
	}

	events, err := r.readOne(partition, false)
	if err != nil {
		return 0, 0, err
	}

	var highwater uint64
	for _, ev := range events {
		if ev.LedgerSequence > highwater {
			highwater = ev.LedgerSequence
		}
	}
	return highwater, 0, nil
}

// readOne reads a single partition directory, tolerating crash damage
func (r *Reader) readOne(partition string, validate bool) ([]domain.SignalEvent, error) {
	dir := filepath.Join(r.base, partition)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) && IsLatePartition(partition) {
			return nil, err
		}
		return nil, fmt.Errorf("partition %s: %w", partition, err)
	}

	// Plain and compressed segments coexist while a lifecycle pass is in
	// flight, so both are listed together and read in ordinal order. When
	// an ordinal exists in both forms the plain file wins: the compressed
	// copy may still be mid-write.
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	type segment struct {
		name       string
		compressed bool
	}
	byOrdinal := map[int]segment{}
	var ordinals []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		compressed := strings.HasSuffix(name, ".gz")
		ordinal, ok := SegmentOrdinal(strings.TrimSuffix(name, ".gz"))
		if !ok {
			continue
		}
		if existing, seen := byOrdinal[ordinal]; seen {
			if !existing.compressed {
				continue
			}
		} else {
			ordinals = append(ordinals, ordinal)
		}
		byOrdinal[ordinal] = segment{name: name, compressed: compressed}
	}
	sort.Ints(ordinals)

	var out []domain.SignalEvent
	for _, ordinal := range ordinals {
		seg := byOrdinal[ordinal]
		read := r.readSegment
		if seg.compressed {
			read = r.readCompressedSegment
		}
		events, err := read(filepath.Join(dir, seg.name), validate)
		if err != nil {
			return nil, err
		}
		out = append(out, events...)
	}
	return out, nil
}

func (r *Reader) readSegment(path string, validate bool) ([]domain.SignalEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open segment: %w", err)
	}
	defer f.Close()

	return r.readFrames(f, path, validate), nil
}

func (r *Reader) readCompressedSegment(path string, validate bool) ([]domain.SignalEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open compressed segment: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("gzip reader for %s: %w", path, err)
	}
	defer gz.Close()

	return r.readFrames(gz, path, validate), nil
}

// readFrames implements the crash-recovery read loop: truncated tails end
// the segment silently, checksum and parse failures skip the record.
func (r *Reader) readFrames(src io.Reader, path string, validate bool) []domain.SignalEvent {
	var out []domain.SignalEvent

	for {
		payload, err := ReadFrame(src, validate)
		if err == io.EOF {
			break
		}
		if errors.Is(err, ErrTruncatedFrame) {
			log.Warn().Str("segment", path).Msg("Truncated tail in segment, recovered prefix")
			break
		}
		if errors.Is(err, ErrChecksumMismatch) {
			log.Warn().Str("segment", path).Msg("Checksum mismatch, skipping record")
			continue
		}
		if err != nil {
			log.Warn().Err(err).Str("segment", path).Msg("Frame read error, stopping segment")
			break
		}

		var ev domain.SignalEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			log.Warn().Err(err).Str("segment", path).Msg("Unparseable record, skipping")
			continue
		}
		out = append(out, ev)
	}

	return out
}
