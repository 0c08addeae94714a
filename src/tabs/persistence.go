package tabs

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

type snapshotHeader struct {
	SchemaVersion int    `json:"schema_version"`
	Kind          string `json:"kind"`
}

const snapshotKind = "tabs"

// Export writes all tab records as newline-delimited JSON with a schema
// version header record
func (m *TabResourceManager) Export(w io.Writer) error {
	encoder := json.NewEncoder(w)

	header := snapshotHeader{SchemaVersion: constants.SnapshotSchemaVersion, Kind: snapshotKind}
	if err := encoder.Encode(header); err != nil {
		return fmt.Errorf("failed to write snapshot header: %w", err)
	}

	for _, record := range m.Records() {
		if err := encoder.Encode(record); err != nil {
			return fmt.Errorf("failed to write snapshot record: %w", err)
		}
	}
	return nil
}

// Import replays a snapshot produced by Export. Tabs mid-restore are
// brought back as Suspended with a reload flag, since the in-flight restore
// did not survive the restart.
func (m *TabResourceManager) Import(r io.Reader) error {
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
		var record TabRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			return fmt.Errorf("failed to parse snapshot record: %w", err)
		}
		if record.State == TabRestoring {
			record.State = TabSuspended
			record.NeedsReload = true
		}

		m.mu.Lock()
		restored := record
		m.records[record.TabID] = &restored
		m.mu.Unlock()
		imported++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}

	common.TabLogger.Info("Imported %d tab records from snapshot", imported)
	return nil
}

// SaveSnapshot persists tab records under the given directory
func (m *TabResourceManager) SaveSnapshot(dir string) error {
	if dir == "" {
		return fmt.Errorf("storage path not configured")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	f, err := os.Create(filepath.Join(dir, constants.TabSnapshotFileName))
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	defer f.Close()

	return m.Export(f)
}

// LoadSnapshot restores tab records from the given directory. A missing
// snapshot file is not an error; the manager starts cold.
func (m *TabResourceManager) LoadSnapshot(dir string) error {
	if dir == "" {
		return fmt.Errorf("storage path not configured")
	}

	f, err := os.Open(filepath.Join(dir, constants.TabSnapshotFileName))
	if err != nil {
		if os.IsNotExist(err) {
			common.TabLogger.Debug("No tab snapshot in %s, starting cold", dir)
			return nil
		}
		return fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer f.Close()

	return m.Import(f)
}
