// Package artifacts persists trained models on the local filesystem.
//
// Each artifact is a gob-encoded file holding its metadata and the gzipped
// gob payload, with a SHA-256 checksum of the uncompressed payload. Files are
// written to a temp file and renamed into place, so readers see either the
// previous artifact or the new one.
package artifacts

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/irfndi/healthcast-go/internal/ml"
	"github.com/irfndi/healthcast-go/internal/models"
)

const fileSuffix = ".gob.gz"

// ErrArtifactNotFound is returned when no artifact exists for a key
var ErrArtifactNotFound = errors.New("artifact not found")

// ErrInvalidUserID is returned for user ids that cannot be used as a directory name
var ErrInvalidUserID = errors.New("invalid user id for artifact path")

// Artifact is a trained model plus its metadata. Pipeline is set for tabular
// artifacts and Sequence for sequence artifacts.
type Artifact struct {
	Metadata models.ArtifactMetadata
	Pipeline *ml.Pipeline
	Sequence *ml.SequenceModel
}

// storedFile is the on-disk layout
type storedFile struct {
	Metadata       models.ArtifactMetadata
	CompressedData []byte
}

// payload is what gets compressed and checksummed
type payload struct {
	Pipeline *ml.Pipeline
	Sequence *ml.SequenceModel
}

// Store reads and writes artifacts under a base directory, one
// subdirectory per user
type Store struct {
	baseDir string

	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

// NewStore creates the base directory if needed
func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}
	return &Store{baseDir: baseDir, locks: make(map[string]*sync.RWMutex)}, nil
}

// BaseDir returns the root directory of the store
func (s *Store) BaseDir() string {
	return s.baseDir
}

func (s *Store) userLock(userID string) *sync.RWMutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[userID]
	if !ok {
		lock = &sync.RWMutex{}
		s.locks[userID] = lock
	}
	return lock
}

func validUserID(userID string) bool {
	if userID == "" || userID == "." || userID == ".." {
		return false
	}
	return !strings.ContainsAny(userID, `/\`) && filepath.Base(userID) == userID
}

// Path returns the file an artifact key is stored at
func (s *Store) Path(key models.ArtifactKey) string {
	return filepath.Join(s.baseDir, key.UserID, key.Name()+fileSuffix)
}

// Save writes the artifact, replacing any previous one for the same key.
// Checksum, size and version are filled into the returned metadata.
func (s *Store) Save(ctx context.Context, art *Artifact) (*models.ArtifactMetadata, error) {
	key := art.Metadata.Key
	if !validUserID(key.UserID) {
		return nil, ErrInvalidUserID
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var raw bytes.Buffer
	if err := gob.NewEncoder(&raw).Encode(payload{Pipeline: art.Pipeline, Sequence: art.Sequence}); err != nil {
		return nil, fmt.Errorf("encode artifact: %w", err)
	}
	hash := sha256.Sum256(raw.Bytes())

	var compressed bytes.Buffer
	gzw := gzip.NewWriter(&compressed)
	if _, err := gzw.Write(raw.Bytes()); err != nil {
		return nil, fmt.Errorf("compress artifact: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return nil, fmt.Errorf("finalize compression: %w", err)
	}

	meta := art.Metadata
	if meta.TrainedAt.IsZero() {
		meta.TrainedAt = time.Now().UTC()
	}
	meta.Checksum = hex.EncodeToString(hash[:])
	meta.SizeBytes = int64(compressed.Len())
	meta.Version = meta.TrainedAt.UTC().Format("20060102T150405.000000000Z")

	lock := s.userLock(key.UserID)
	lock.Lock()
	defer lock.Unlock()

	dir := filepath.Join(s.baseDir, key.UserID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create user artifact directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, key.Name()+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := gob.NewEncoder(tmp).Encode(storedFile{Metadata: meta, CompressedData: compressed.Bytes()}); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("sync artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmpName, s.Path(key)); err != nil {
		return nil, fmt.Errorf("install artifact: %w", err)
	}

	return &meta, nil
}

// Load reads and verifies the artifact for key
func (s *Store) Load(ctx context.Context, key models.ArtifactKey) (*Artifact, error) {
	if !validUserID(key.UserID) {
		return nil, ErrInvalidUserID
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lock := s.userLock(key.UserID)
	lock.RLock()
	defer lock.RUnlock()

	sf, err := s.readFile(s.Path(key))
	if err != nil {
		return nil, err
	}

	gzr, err := gzip.NewReader(bytes.NewReader(sf.CompressedData))
	if err != nil {
		return nil, fmt.Errorf("decompress artifact: %w", err)
	}
	defer func() { _ = gzr.Close() }()

	raw, err := io.ReadAll(gzr)
	if err != nil {
		return nil, fmt.Errorf("read decompressed artifact: %w", err)
	}

	hash := sha256.Sum256(raw)
	if checksum := hex.EncodeToString(hash[:]); checksum != sf.Metadata.Checksum {
		return nil, fmt.Errorf("checksum mismatch for %s: expected %s, got %s", key, sf.Metadata.Checksum, checksum)
	}

	var p payload
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	return &Artifact{Metadata: sf.Metadata, Pipeline: p.Pipeline, Sequence: p.Sequence}, nil
}

func (s *Store) readFile(path string) (*storedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrArtifactNotFound
		}
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	defer func() { _ = f.Close() }()

	var sf storedFile
	if err := gob.NewDecoder(f).Decode(&sf); err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return &sf, nil
}

// List returns the metadata of every artifact stored for the user, sorted by key name
func (s *Store) List(ctx context.Context, userID string) ([]models.ArtifactMetadata, error) {
	if !validUserID(userID) {
		return nil, ErrInvalidUserID
	}

	lock := s.userLock(userID)
	lock.RLock()
	defer lock.RUnlock()

	entries, err := os.ReadDir(filepath.Join(s.baseDir, userID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list artifacts: %w", err)
	}

	var out []models.ArtifactMetadata
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileSuffix) {
			continue
		}
		sf, err := s.readFile(filepath.Join(s.baseDir, userID, entry.Name()))
		if err != nil {
			continue
		}
		out = append(out, sf.Metadata)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Name() < out[j].Key.Name() })
	return out, nil
}

// Delete removes the artifact for key if present
func (s *Store) Delete(ctx context.Context, key models.ArtifactKey) error {
	if !validUserID(key.UserID) {
		return ErrInvalidUserID
	}

	lock := s.userLock(key.UserID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(s.Path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete artifact: %w", err)
	}
	return nil
}
