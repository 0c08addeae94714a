package cache

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"browser-engine/src/internal/common"
	"browser-engine/src/internal/constants"
)

// snapshotHeader is the first record of a snapshot file
type snapshotHeader struct {
	SchemaVersion int    `json:"schema_version"`
	Kind          string `json:"kind"`
}

const snapshotKind = "cache"

// Export writes all live entries as newline-delimited JSON, preceded by a
// schema version header record
func (c *PredictiveCache) Export(w io.Writer) error {
	encoder := json.NewEncoder(w)

	header := snapshotHeader{SchemaVersion: constants.SnapshotSchemaVersion, Kind: snapshotKind}
	if err := encoder.Encode(header); err != nil {
		return fmt.Errorf("failed to write snapshot header: %w", err)
	}

	for _, entry := range c.Entries() {
		if err := encoder.Encode(entry); err != nil {
			return fmt.Errorf("failed to write snapshot entry: %w", err)
		}
	}
	return nil
}

// Import replays a snapshot produced by Export. Entries are re-admitted
// through the normal admission path so the budget invariant holds even if
// the snapshot was written under a larger budget.
func (c *PredictiveCache) Import(r io.Reader) error {
	scanner := bufio.NewScanner(r)

	if !scanner.Scan() {
		return fmt.Errorf("snapshot is empty")
	}
	var header snapshotHeader
	if err := json.Unmarshal(scanner.Bytes(), &header); err != nil {
		return fmt.Errorf("failed to parse snapshot header: %w", err)
	}
	if header.Kind != snapshotKind {
		return fmt.Errorf("unexpected snapshot kind %q", header.Kind)
	}
	if header.SchemaVersion != constants.SnapshotSchemaVersion {
		return fmt.Errorf("unsupported snapshot schema version %d", header.SchemaVersion)
	}

	imported := 0
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var entry CacheEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return fmt.Errorf("failed to parse snapshot entry: %w", err)
		}
		result := c.Admit(Candidate{
			URL:           entry.URL,
			Probability:   entry.Probability,
			EstimatedSize: entry.EstimatedSize,
		})
		if result.Admitted {
			if entry.State == EntryFetched {
				c.MarkFetched(entry.URL)
			}
			imported++
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}

	common.CacheLogger.Info("Imported %d cache entries from snapshot", imported)
	return nil
}

// SaveSnapshot persists the cache to the configured storage path
func (c *PredictiveCache) SaveSnapshot() error {
	if c.cfg.StoragePath == "" {
		return fmt.Errorf("storage path not configured")
	}
	if err := os.MkdirAll(c.cfg.StoragePath, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	path := filepath.Join(c.cfg.StoragePath, constants.CacheSnapshotFileName)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	defer f.Close()

	return c.Export(f)
}

// LoadSnapshot restores the cache from the configured storage path. A
// missing snapshot file is not an error; the cache starts cold.
func (c *PredictiveCache) LoadSnapshot() error {
	if c.cfg.StoragePath == "" {
		return fmt.Errorf("storage path not configured")
	}

	path := filepath.Join(c.cfg.StoragePath, constants.CacheSnapshotFileName)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			common.CacheLogger.Debug("No cache snapshot at %s, starting cold", path)
			return nil
		}
		return fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer f.Close()

	return c.Import(f)
}
