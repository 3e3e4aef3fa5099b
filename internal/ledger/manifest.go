package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ManifestSchemaVersion is bumped on incompatible manifest changes
const ManifestSchemaVersion = "1.0.0"

// SegmentSummary describes one sealed segment in the manifest
type SegmentSummary struct {
	File        string `json:"file"`
	RecordCount int    `json:"record_count"`
	SizeBytes   int64  `json:"size_bytes"`
	Checksum    string `json:"checksum"`
}

// Manifest summarizes a sealed partition
type Manifest struct {
	SchemaVersion     string           `json:"schema_version"`
	PartitionDate     string           `json:"partition_date"`
	SealedAt          time.Time        `json:"sealed_at"`
	TotalRecords      int              `json:"total_records"`
	HighwaterSequence uint64           `json:"highwater_sequence"`
	ManifestRevision  int              `json:"manifest_revision"`
	Segments          []SegmentSummary `json:"segments"`
	IsLatePartition   bool             `json:"is_late_partition"`
}

// writeManifest persists the manifest atomically into the partition
func writeManifest(partitionDir string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return writeFileAtomic(filepath.Join(partitionDir, manifestFile), data, 0o644)
}

// ReadManifest loads the manifest of a sealed partition
func ReadManifest(partitionDir string) (Manifest, error) {
	var m Manifest

	data, err := os.ReadFile(filepath.Join(partitionDir, manifestFile))
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parse manifest: %w", err)
	}
	return m, nil
}
