// Package backup writes and reads the JSON artifacts kept next to the
// database: line-delimited branch snapshots, pretty exports, and
// migration copies of legacy files.
package backup

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/branchmem/branchmem/internal/models"
)

// Record is one line of a line-delimited snapshot. Type is "entity" or
// "relation"; the remaining fields apply to one or the other.
type Record struct {
	Type string `json:"type"`

	// entity fields
	Name            string                 `json:"name,omitempty"`
	EntityType      string                 `json:"entityType,omitempty"`
	Observations    []string               `json:"observations,omitempty"`
	Status          models.EntityStatus    `json:"status,omitempty"`
	StatusReason    string                 `json:"statusReason,omitempty"`
	LastUpdated     string                 `json:"lastUpdated,omitempty"`
	CrossReferences []models.CrossRefGroup `json:"crossReferences,omitempty"`

	// relation fields
	From         string `json:"from,omitempty"`
	To           string `json:"to,omitempty"`
	RelationType string `json:"relationType,omitempty"`
}

// Export is the pretty JSON export schema.
type Export struct {
	Branch     string            `json:"branch"`
	ExportedAt string            `json:"exportedAt"`
	Stats      ExportStats       `json:"stats"`
	Entities   []models.Entity   `json:"entities"`
	Relations  []models.Relation `json:"relations"`
}

// ExportStats summarises an export.
type ExportStats struct {
	EntityCount   int `json:"entityCount"`
	RelationCount int `json:"relationCount"`
}

// TimestampSlug renders t as an RFC3339-millisecond UTC stamp with
// colons and dots replaced so it is filename-safe.
func TimestampSlug(t time.Time) string {
	stamp := t.UTC().Format("2006-01-02T15:04:05.000Z")
	return strings.NewReplacer(":", "-", ".", "-").Replace(stamp)
}

// Writer emits snapshots into a backups directory and trims old ones.
type Writer struct {
	dir  string
	keep int
}

// NewWriter returns a Writer targeting dir, retaining keep snapshots
// per branch on Trim.
func NewWriter(dir string, keep int) *Writer {
	if keep <= 0 {
		keep = 5
	}
	return &Writer{dir: dir, keep: keep}
}

// Dir returns the backups directory.
func (w *Writer) Dir() string {
	return w.dir
}

// WriteSnapshot writes a line-delimited snapshot of a branch graph and
// returns the file path.
func (w *Writer) WriteSnapshot(branch string, graph models.Graph) (string, error) {
	name := fmt.Sprintf("%s_%s.json", sanitizeBranch(branch), TimestampSlug(time.Now()))
	path := filepath.Join(w.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create snapshot: %w", err)
	}
	defer f.Close()

	buf := bufio.NewWriter(f)
	enc := json.NewEncoder(buf)
	for _, e := range graph.Entities {
		rec := Record{
			Type:         "entity",
			Name:         e.Name,
			EntityType:   e.EntityType,
			Observations: e.ObservationContents(),
			Status:       e.Status,
			StatusReason: e.StatusReason,
			LastUpdated:  e.UpdatedAt,
		}
		if err := enc.Encode(rec); err != nil {
			return "", fmt.Errorf("encode entity line: %w", err)
		}
	}
	for _, r := range graph.Relations {
		rec := Record{
			Type:         "relation",
			From:         r.From,
			To:           r.To,
			RelationType: r.RelationType,
		}
		if err := enc.Encode(rec); err != nil {
			return "", fmt.Errorf("encode relation line: %w", err)
		}
	}
	if err := buf.Flush(); err != nil {
		return "", fmt.Errorf("flush snapshot: %w", err)
	}
	return path, nil
}

// WriteExport writes a pretty JSON export of a branch graph.
func (w *Writer) WriteExport(branch string, graph models.Graph) (string, error) {
	export := Export{
		Branch:     branch,
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Stats: ExportStats{
			EntityCount:   len(graph.Entities),
			RelationCount: len(graph.Relations),
		},
		Entities:  graph.Entities,
		Relations: graph.Relations,
	}
	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal export: %w", err)
	}

	name := fmt.Sprintf("export_%s_%s.json", sanitizeBranch(branch), TimestampSlug(time.Now()))
	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return path, nil
}

// WriteMigration copies a legacy file's parsed records into a
// timestamped migration backup.
func (w *Writer) WriteMigration(branch string, records []Record) (string, error) {
	name := fmt.Sprintf("migration_%s_%s.json", sanitizeBranch(branch), TimestampSlug(time.Now()))
	path := filepath.Join(w.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create migration backup: %w", err)
	}
	defer f.Close()

	buf := bufio.NewWriter(f)
	enc := json.NewEncoder(buf)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return "", fmt.Errorf("encode migration line: %w", err)
		}
	}
	if err := buf.Flush(); err != nil {
		return "", fmt.Errorf("flush migration backup: %w", err)
	}
	return path, nil
}

// Trim keeps the newest snapshots per branch and removes the rest.
// Exports and migration backups are left alone.
func (w *Writer) Trim() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("read backups dir: %w", err)
	}

	byBranch := make(map[string][]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		if strings.HasPrefix(name, "export_") || strings.HasPrefix(name, "migration_") {
			continue
		}
		branch, ok := snapshotBranch(name)
		if !ok {
			continue
		}
		byBranch[branch] = append(byBranch[branch], name)
	}

	for _, names := range byBranch {
		if len(names) <= w.keep {
			continue
		}
		// Timestamp slugs sort lexicographically; newest last.
		sort.Strings(names)
		for _, name := range names[:len(names)-w.keep] {
			if err := os.Remove(filepath.Join(w.dir, name)); err != nil {
				log.Warn("failed to trim backup", "file", name, "error", err)
			}
		}
	}
	return nil
}

// ReadLines parses a line-delimited JSON file into records, skipping
// lines that fail to parse. The skip count is returned for reporting.
func ReadLines(path string) ([]Record, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var records []Record
	skipped := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			log.Warn("skipping unparseable line", "file", filepath.Base(path), "line", lineNo, "error", err)
			skipped++
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, skipped, fmt.Errorf("scan %s: %w", path, err)
	}
	return records, skipped, nil
}

// sanitizeBranch makes a branch name filename-safe (branches may
// contain slashes).
func sanitizeBranch(branch string) string {
	return strings.ReplaceAll(branch, "/", "-")
}

// snapshotBranch extracts the branch prefix from a snapshot filename
// of the form <branch>_<ts>.json.
func snapshotBranch(name string) (string, bool) {
	base := strings.TrimSuffix(name, ".json")
	// The timestamp slug never contains underscores, so the last one
	// separates branch from timestamp.
	idx := strings.LastIndex(base, "_")
	if idx <= 0 {
		return "", false
	}
	return base[:idx], true
}
