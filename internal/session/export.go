package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/chatrelay/chatrelay/internal/storage"
	"github.com/chatrelay/chatrelay/pkg/types"
)

// ErrInvalidExport is returned by Open for names that are not export files.
var ErrInvalidExport = errors.New("invalid export file name")

const exportTimeLayout = "20060102_150405"

// Exporter writes session snapshots to an exports directory.
type Exporter struct {
	storage *storage.Storage
	now     func() time.Time
}

// NewExporter creates an Exporter writing below st.
func NewExporter(st *storage.Storage) *Exporter {
	return &Exporter{storage: st, now: time.Now}
}

// Export writes the session record plus exported_at and total_messages and
// returns the file name, <session_id>_<YYYYMMDD_HHMMSS>.json.
func (e *Exporter) Export(ctx context.Context, sess *types.Session) (string, error) {
	data, err := json.Marshal(sess)
	if err != nil {
		return "", fmt.Errorf("encode session %s: %w", sess.ID, err)
	}
	record := make(map[string]any)
	if err := json.Unmarshal(data, &record); err != nil {
		return "", fmt.Errorf("encode session %s: %w", sess.ID, err)
	}
	now := e.now().UTC()
	record["exported_at"] = now.Format(time.RFC3339Nano)
	record["total_messages"] = len(sess.Messages)

	key := sess.ID + "_" + now.Format(exportTimeLayout)
	if err := e.storage.Put(ctx, []string{key}, record); err != nil {
		return "", fmt.Errorf("%w: export %s: %w", ErrPersistence, sess.ID, err)
	}
	return key + ".json", nil
}

// Open returns the contents of an export file by bare file name.
func (e *Exporter) Open(ctx context.Context, filename string) ([]byte, error) {
	if filename != filepath.Base(filename) || strings.HasPrefix(filename, ".") ||
		strings.ContainsAny(filename, `/\`) || !strings.HasSuffix(filename, ".json") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidExport, filename)
	}
	key := []string{strings.TrimSuffix(filename, ".json")}
	if !e.storage.Exists(ctx, key) {
		return nil, fmt.Errorf("export %s: %w", filename, storage.ErrNotFound)
	}
	return e.storage.ReadRaw(ctx, key)
}

// List returns the export file names, optionally only those of sessionID,
// sorted by name so each session's exports are in chronological order.
func (e *Exporter) List(ctx context.Context, sessionID string) ([]string, error) {
	keys, err := e.storage.List(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list exports: %w", err)
	}
	files := make([]string, 0, len(keys))
	for _, key := range keys {
		if sessionID != "" && !strings.HasPrefix(key, sessionID+"_") {
			continue
		}
		files = append(files, key+".json")
	}
	sort.Strings(files)
	return files, nil
}
