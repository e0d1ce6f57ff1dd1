package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/alejandrodnm/tradecore/internal/domain"
)

// SaveSnapshot guarda el documento del performance tracker (fila única).
func (s *SQLiteStorage) SaveSnapshot(ctx context.Context, snap domain.PerformanceSnapshot) error {
	doc, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("storage.SaveSnapshot: encode: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO performance_snapshot (id, document, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at`,
		string(doc), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveSnapshot: %w", err)
	}
	return nil
}

// LoadSnapshot devuelve found=false si no hay snapshot previo.
func (s *SQLiteStorage) LoadSnapshot(ctx context.Context) (domain.PerformanceSnapshot, bool, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM performance_snapshot WHERE id=1`).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PerformanceSnapshot{}, false, nil
	}
	if err != nil {
		return domain.PerformanceSnapshot{}, false, fmt.Errorf("storage.LoadSnapshot: %w", err)
	}
	var snap domain.PerformanceSnapshot
	if err := json.Unmarshal([]byte(doc), &snap); err != nil {
		return domain.PerformanceSnapshot{}, false, fmt.Errorf("storage.LoadSnapshot: decode: %w", err)
	}
	return snap, true, nil
}

// JSONFileStore guarda el snapshot del tracker como un documento JSON en disco.
// Escribe a un fichero temporal y renombra, así un crash nunca deja el
// documento a medias.
type JSONFileStore struct {
	path string
	mu   sync.Mutex
}

// NewJSONFileStore crea el store; el directorio se crea en el primer guardado.
func NewJSONFileStore(path string) *JSONFileStore {
	return &JSONFileStore{path: path}
}

// SaveSnapshot implementa ports.SnapshotStore.
func (f *JSONFileStore) SaveSnapshot(_ context.Context, snap domain.PerformanceSnapshot) error {
	doc, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("storage.JSONFileStore.SaveSnapshot: encode: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("storage.JSONFileStore.SaveSnapshot: mkdir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, doc, 0o644); err != nil {
		return fmt.Errorf("storage.JSONFileStore.SaveSnapshot: write: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("storage.JSONFileStore.SaveSnapshot: rename: %w", err)
	}
	return nil
}

// LoadSnapshot implementa ports.SnapshotStore.
func (f *JSONFileStore) LoadSnapshot(_ context.Context) (domain.PerformanceSnapshot, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return domain.PerformanceSnapshot{}, false, nil
	}
	if err != nil {
		return domain.PerformanceSnapshot{}, false, fmt.Errorf("storage.JSONFileStore.LoadSnapshot: %w", err)
	}
	var snap domain.PerformanceSnapshot
	if err := json.Unmarshal(doc, &snap); err != nil {
		return domain.PerformanceSnapshot{}, false, fmt.Errorf("storage.JSONFileStore.LoadSnapshot: decode: %w", err)
	}
	return snap, true, nil
}
