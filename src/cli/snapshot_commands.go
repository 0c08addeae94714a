package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"browser-engine/src/internal/constants"
)

var snapshotCmd = &cobra.Command{
	Use:   CmdSnapshot,
	Short: "Inspect and transfer persisted warm-start snapshots",
}

var snapshotInspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Summarize the cache and tab snapshots in the storage directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := LoadConfigWithFallback(configPath)
		dir := cfg.Cache.StoragePath
		if dir == "" {
			return fmt.Errorf("no storage path configured")
		}

		inspectFile(filepath.Join(dir, constants.CacheSnapshotFileName), "cache entries")
		inspectFile(filepath.Join(dir, constants.TabSnapshotFileName), "tab records")
		return nil
	},
}

var snapshotExportCmd = &cobra.Command{
	Use:   "export <dir>",
	Short: "Copy the current snapshots into a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := LoadConfigWithFallback(configPath)
		if cfg.Cache.StoragePath == "" {
			return fmt.Errorf("no storage path configured")
		}
		return transferSnapshots(cfg.Cache.StoragePath, args[0])
	},
}

var snapshotImportCmd = &cobra.Command{
	Use:   "import <dir>",
	Short: "Copy snapshots from a directory into the storage path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := LoadConfigWithFallback(configPath)
		if cfg.Cache.StoragePath == "" {
			return fmt.Errorf("no storage path configured")
		}
		return transferSnapshots(args[0], cfg.Cache.StoragePath)
	},
}

func init() {
	snapshotCmd.AddCommand(snapshotInspectCmd)
	snapshotCmd.AddCommand(snapshotExportCmd)
	snapshotCmd.AddCommand(snapshotImportCmd)
}

// transferSnapshots copies the known snapshot files between directories.
// Missing source files are skipped so a cache-only export still works.
func transferSnapshots(srcDir, dstDir string) error {
	if err := os.MkdirAll(dstDir, 0755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	copied := 0
	for _, name := range []string{constants.CacheSnapshotFileName, constants.TabSnapshotFileName} {
		src := filepath.Join(srcDir, name)
		if _, err := os.Stat(src); os.IsNotExist(err) {
			continue
		}
		if err := copyFile(src, filepath.Join(dstDir, name)); err != nil {
			return err
		}
		fmt.Printf("copied %s\n", name)
		copied++
	}
	if copied == 0 {
		return fmt.Errorf("no snapshot files found in %s", srcDir)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Sync()
}

func inspectFile(path, label string) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Printf("%-14s no snapshot (%s)\n", label+":", path)
		} else {
			fmt.Printf("%-14s unreadable: %v\n", label+":", err)
		}
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		fmt.Printf("%-14s empty snapshot\n", label+":")
		return
	}

	var header struct {
		SchemaVersion int    `json:"schema_version"`
		Kind          string `json:"kind"`
	}
	if err := json.Unmarshal(scanner.Bytes(), &header); err != nil {
		fmt.Printf("%-14s corrupt header: %v\n", label+":", err)
		return
	}

	records := 0
	for scanner.Scan() {
		if len(scanner.Bytes()) > 0 {
			records++
		}
	}

	fmt.Printf("%-14s %d records (schema v%d, %s)\n", label+":", records, header.SchemaVersion, path)
}
