// Package metadata handles the sidecar .meta.json files written alongside
// every backup artifact: checksum, size, timing, and (for incremental
// backups) the chain back to the base backup it depends on.
package metadata

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// IncrementalMetadata records the base backup an incremental backup depends
// on, so restore can walk the chain back to a full backup.
type IncrementalMetadata struct {
	BaseBackupID        string    `json:"base_backup_id"`
	BaseBackupPath      string    `json:"base_backup_path"`
	BaseBackupTimestamp time.Time `json:"base_backup_timestamp"`
	IncrementalFiles    int       `json:"incremental_files"`
	TotalSize           int64     `json:"total_size"`
	BackupChain         []string  `json:"backup_chain"`
}

// BackupMetadata describes a single logical-backup artifact (one dump/dir
// file), written next to it as "<file>.meta.json".
type BackupMetadata struct {
	Version             string                `json:"version"`
	Timestamp           time.Time             `json:"timestamp"`
	Database            string                `json:"database"`
	DatabaseType        string                `json:"database_type"`
	DatabaseVersion     string                `json:"database_version,omitempty"`
	Host                string                `json:"host"`
	Port                int                   `json:"port"`
	User                string                `json:"user"`
	BackupFile          string                `json:"backup_file"`
	SizeBytes           int64                 `json:"size_bytes"`
	SHA256              string                `json:"sha256"`
	Compression         string                `json:"compression"`
	BackupType          string                `json:"backup_type"`
	Duration            float64               `json:"duration_seconds"`
	ExtraInfo           map[string]string     `json:"extra_info,omitempty"`
	Encrypted           bool                  `json:"encrypted,omitempty"`
	EncryptionAlgorithm string                `json:"encryption_algorithm,omitempty"`
	Incremental         *IncrementalMetadata  `json:"incremental,omitempty"`
}

// ClusterMetadata describes a whole-cluster backup artifact covering
// multiple databases in one archive.
type ClusterMetadata struct {
	Version      string            `json:"version"`
	Timestamp    time.Time         `json:"timestamp"`
	ClusterName  string            `json:"cluster_name"`
	DatabaseType string            `json:"database_type"`
	Host         string            `json:"host"`
	Port         int               `json:"port"`
	TotalSize    int64             `json:"total_size"`
	Duration     float64           `json:"duration_seconds"`
	ExtraInfo    map[string]string `json:"extra_info,omitempty"`
	Databases    []BackupMetadata  `json:"databases"`
}

// metaPath returns the sidecar metadata path for a backup artifact path.
func metaPath(backupFile string) string {
	return backupFile + ".meta.json"
}

// Save writes meta as JSON to path, creating the file if needed.
func Save(path string, meta any) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("metadata: marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("metadata: write %s: %w", path, err)
	}
	return nil
}

// Save writes m next to its BackupFile as "<BackupFile>.meta.json".
func (m *BackupMetadata) Save() error {
	return Save(metaPath(m.BackupFile), m)
}

// Save writes m next to targetFile as "<targetFile>.meta.json".
func (m *ClusterMetadata) Save(targetFile string) error {
	return Save(metaPath(targetFile), m)
}

// Load reads the sidecar metadata for backupFile.
func Load(backupFile string) (*BackupMetadata, error) {
	data, err := os.ReadFile(metaPath(backupFile))
	if err != nil {
		return nil, fmt.Errorf("metadata: read %s: %w", metaPath(backupFile), err)
	}
	var meta BackupMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("metadata: parse %s: %w", metaPath(backupFile), err)
	}
	return &meta, nil
}

// LoadCluster reads the sidecar cluster metadata for targetFile.
func LoadCluster(targetFile string) (*ClusterMetadata, error) {
	data, err := os.ReadFile(metaPath(targetFile))
	if err != nil {
		return nil, fmt.Errorf("metadata: read %s: %w", metaPath(targetFile), err)
	}
	var meta ClusterMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("metadata: parse %s: %w", metaPath(targetFile), err)
	}
	return &meta, nil
}

// ListBackups scans dir for "*.meta.json" sidecars and returns their parsed
// BackupMetadata, newest first. Sidecars with invalid JSON are skipped.
func ListBackups(dir string) ([]*BackupMetadata, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("metadata: read dir %s: %w", dir, err)
	}

	var out []*BackupMetadata
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".meta.json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		var meta BackupMetadata
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}
		out = append(out, &meta)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

// CalculateSHA256 hashes path's contents, streaming so it never loads a
// large backup file fully into memory.
func CalculateSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("metadata: open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("metadata: hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// sizeUnits mirrors the IEC binary prefixes used throughout the CLI's
// human-readable size output.
var sizeUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB", "EiB"}

// FormatSize renders bytes using IEC binary units ("1.5 KiB"), matching the
// catalog's own FormatSize so backup and catalog output stay consistent.
func FormatSize(bytes int64) string {
	if bytes < 1024 {
		return fmt.Sprintf("%d B", bytes)
	}
	size := float64(bytes)
	unit := 0
	for size >= 1024 && unit < len(sizeUnits)-1 {
		size /= 1024
		unit++
	}
	return fmt.Sprintf("%.1f %s", size, sizeUnits[unit])
}
