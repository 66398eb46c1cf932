package memory

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/branchmem/branchmem/internal/backup"
	"github.com/branchmem/branchmem/internal/storage"
)

// legacyFile pairs a discovered line-delimited JSON file with the branch
// it imports into.
type legacyFile struct {
	path   string
	branch string
}

// migrateLegacy imports any legacy line-delimited JSON files into the
// store: memory.json at the base path or inside .memory imports into
// main; any other <branch>.json inside .memory imports into the branch
// named by the file. Each imported file is copied into a timestamped
// migration backup and renamed aside so the next startup skips it.
func (m *Manager) migrateLegacy(ctx context.Context) error {
	files := m.discoverLegacyFiles()
	for _, f := range files {
		records, skipped, err := backup.ReadLines(f.path)
		if err != nil {
			log.Warn("skipping legacy file", "file", f.path, "error", err)
			continue
		}
		if skipped > 0 {
			log.Warn("legacy file has bad lines", "file", f.path, "skipped", skipped)
		}
		if len(records) == 0 {
			continue
		}

		result, err := m.Import(ctx, f.branch, graphFromRecords(records))
		if err != nil {
			log.Warn("legacy import failed", "file", f.path, "branch", f.branch, "error", err)
			continue
		}
		log.Info("migrated legacy file",
			"file", filepath.Base(f.path), "branch", f.branch,
			"entities", result.EntitiesCreated, "relations", result.RelationsCreated)

		if _, err := m.backups.WriteMigration(f.branch, records); err != nil {
			log.Warn("migration backup failed", "file", f.path, "error", err)
		}
		if err := os.Rename(f.path, f.path+".migrated"); err != nil {
			log.Warn("could not rename migrated file", "file", f.path, "error", err)
		}
	}
	return nil
}

// discoverLegacyFiles finds migration candidates. memory.json may sit at
// the base path or inside .memory; per-branch files sit inside .memory
// only. Dotfiles and the database itself are never candidates.
func (m *Manager) discoverLegacyFiles() []legacyFile {
	var files []legacyFile

	rootFile := filepath.Join(m.cfg.MemoryPath, "memory.json")
	if fileExists(rootFile) {
		files = append(files, legacyFile{path: rootFile, branch: storage.MainBranch})
	}

	dir := m.store.Dir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Warn("cannot scan memory dir for legacy files", "dir", dir, "error", err)
		return files
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		branch := storage.MainBranch
		if name != "memory.json" {
			branch = strings.TrimSuffix(name, ".json")
		}
		files = append(files, legacyFile{path: filepath.Join(dir, name), branch: branch})
	}
	return files
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
