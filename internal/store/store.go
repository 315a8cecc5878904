// internal/store/store.go

// Package store persists trained model artifacts as JSON files on disk,
// one per (tenant, product, kind). Artifacts are superseded atomically,
// never mutated in place.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stockwise/forecast-engine/internal/domain"
	"github.com/stockwise/forecast-engine/internal/features"
)

// TrainedModel is one persisted model artifact. Payload is the encoded
// model (model.Encode); SchemaVersion pins the feature schema it was
// trained against.
type TrainedModel struct {
	TenantID      string              `json:"tenant_id"`
	ProductID     string              `json:"product_id"`
	Kind          string              `json:"model_kind"`
	SchemaVersion int                 `json:"schema_version"`
	TrainedAt     time.Time           `json:"trained_at"`
	Metrics       domain.ModelMetrics `json:"metrics"`
	ResidualStd   float64             `json:"residual_std"`
	Payload       json.RawMessage     `json:"payload"`
}

// Info strips the payload for listing endpoints.
func (m *TrainedModel) Info() domain.StoredModelInfo {
	return domain.StoredModelInfo{
		TenantID:      m.TenantID,
		ProductID:     m.ProductID,
		Kind:          m.Kind,
		SchemaVersion: m.SchemaVersion,
		TrainedAt:     m.TrainedAt,
		Metrics:       m.Metrics,
	}
}

// ModelStore is the persistence contract used by the service layer.
type ModelStore interface {
	Save(ctx context.Context, m *TrainedModel) error
	Load(ctx context.Context, tenantID, productID, kind string) (*TrainedModel, error)
	List(ctx context.Context, tenantID string) ([]domain.StoredModelInfo, error)
}

const lockStripes = 32

// FileStore keeps artifacts under root/<tenant>/<product>/<kind>.json.
// Writes to the same key are serialized through striped mutexes and land
// via temp-file rename, so a failed write leaves the previous artifact
// intact.
type FileStore struct {
	root  string
	locks [lockStripes]sync.Mutex
}

func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: model store root is empty", domain.ErrInvalidParameters)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create model store root: %w", err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) lock(tenantID, productID, kind string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(tenantID))
	h.Write([]byte{0})
	h.Write([]byte(productID))
	h.Write([]byte{0})
	h.Write([]byte(kind))
	return &s.locks[h.Sum32()%lockStripes]
}

func keyPart(name, value string) (string, error) {
	if value == "" || strings.ContainsAny(value, `/\`) || value == "." || value == ".." {
		return "", fmt.Errorf("%w: invalid %s %q", domain.ErrInvalidParameters, name, value)
	}
	return value, nil
}

func (s *FileStore) path(tenantID, productID, kind string) (string, error) {
	tenant, err := keyPart("tenant_id", tenantID)
	if err != nil {
		return "", err
	}
	product, err := keyPart("product_id", productID)
	if err != nil {
		return "", err
	}
	k, err := keyPart("model_kind", kind)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, tenant, product, k+".json"), nil
}

// Save writes the artifact unless a newer one already exists for the same
// key. Last writer by TrainedAt wins; an older artifact is rejected with
// ErrStaleModel.
func (s *FileStore) Save(ctx context.Context, m *TrainedModel) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(m.TenantID, m.ProductID, m.Kind)
	if err != nil {
		return err
	}
	if m.TrainedAt.IsZero() {
		return fmt.Errorf("%w: trained_at is zero", domain.ErrInvalidParameters)
	}

	mu := s.lock(m.TenantID, m.ProductID, m.Kind)
	mu.Lock()
	defer mu.Unlock()

	if existing, err := readArtifact(path); err == nil {
		if existing.TrainedAt.After(m.TrainedAt) {
			return fmt.Errorf("%w: stored artifact trained at %s is newer than %s",
				domain.ErrStaleModel,
				existing.TrainedAt.Format(time.RFC3339),
				m.TrainedAt.Format(time.RFC3339))
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		// Unreadable artifact gets overwritten rather than blocking saves.
		log.Warn().Err(err).Str("path", path).Msg("replacing unreadable model artifact")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+m.Kind+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp artifact: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace artifact: %w", err)
	}
	return nil
}

// Load reads one artifact. A missing file maps to ErrModelNotFound; an
// artifact trained against a different feature schema maps to
// ErrSchemaMismatch so callers can trigger retraining instead of silently
// predicting from misaligned vectors.
func (s *FileStore) Load(ctx context.Context, tenantID, productID, kind string) (*TrainedModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.path(tenantID, productID, kind)
	if err != nil {
		return nil, err
	}
	m, err := readArtifact(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s/%s/%s", domain.ErrModelNotFound, tenantID, productID, kind)
		}
		return nil, err
	}
	if m.SchemaVersion != features.SchemaVersion {
		return nil, fmt.Errorf("%w: artifact schema %d, engine schema %d",
			domain.ErrSchemaMismatch, m.SchemaVersion, features.SchemaVersion)
	}
	return m, nil
}

// List returns metadata for every artifact stored for a tenant. An unknown
// tenant yields an empty slice, not an error.
func (s *FileStore) List(ctx context.Context, tenantID string) ([]domain.StoredModelInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tenant, err := keyPart("tenant_id", tenantID)
	if err != nil {
		return nil, err
	}
	tenantDir := filepath.Join(s.root, tenant)
	products, err := os.ReadDir(tenantDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []domain.StoredModelInfo{}, nil
		}
		return nil, fmt.Errorf("list tenant artifacts: %w", err)
	}

	infos := []domain.StoredModelInfo{}
	for _, product := range products {
		if !product.IsDir() {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(tenantDir, product.Name()))
		if err != nil {
			return nil, fmt.Errorf("list product artifacts: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			m, err := readArtifact(filepath.Join(tenantDir, product.Name(), entry.Name()))
			if err != nil {
				log.Warn().Err(err).Str("file", entry.Name()).Msg("skipping unreadable model artifact")
				continue
			}
			infos = append(infos, m.Info())
		}
	}
	return infos, nil
}

func readArtifact(path string) (*TrainedModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m TrainedModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", filepath.Base(path), err)
	}
	return &m, nil
}
