// Package facestore persists the identity -> mean face embedding mapping used
// for student recognition. The full mapping is held in memory and written back
// to a JSON snapshot on every mutation.
package facestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// UnknownLabel is the sentinel identity returned when no match exists.
const UnknownLabel = "Unknown"

var (
	// ErrDuplicateIdentity is returned when registering a name that already exists.
	ErrDuplicateIdentity = errors.New("identity already registered")
	// ErrNoSamples is returned when no sample embeddings are supplied.
	ErrNoSamples = errors.New("no sample embeddings supplied")
	// ErrDimensionMismatch is returned when sample embeddings disagree on dimension.
	ErrDimensionMismatch = errors.New("sample embeddings have mismatched dimensions")
)

// Identity is one registered student: the mean of their sample embeddings plus
// profile metadata. Embeddings are stored raw; normalization happens at
// comparison time.
type Identity struct {
	Name         string    `json:"name"`
	Embedding    []float32 `json:"embedding"`
	StudentID    string    `json:"student_id"`
	Email        string    `json:"email"`
	RegisteredAt time.Time `json:"registered_at"`
}

// StudentInfo is the metadata view of an identity, without the embedding.
type StudentInfo struct {
	Name         string    `json:"name"`
	StudentID    string    `json:"student_id"`
	Email        string    `json:"email"`
	RegisteredAt time.Time `json:"registered_at"`
}

type snapshot struct {
	Identities map[string]*Identity `json:"identities"`
}

// Store owns the identity mapping. Reads run in parallel; mutations take the
// write lock and persist the snapshot before returning.
type Store struct {
	path   string
	logger *zap.Logger

	mu         sync.RWMutex
	identities map[string]*Identity
}

// NewStore loads the snapshot at path. A missing snapshot is a valid initial
// state and yields an empty store.
func NewStore(path string, logger *zap.Logger) (*Store, error) {
	s := &Store{
		path:       path,
		logger:     logger.Named("facestore"),
		identities: make(map[string]*Identity),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("face store snapshot not found, starting empty", zap.String("path", s.path))
		return nil
	}
	if err != nil {
		return fmt.Errorf("read face store snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode face store snapshot: %w", err)
	}
	if snap.Identities != nil {
		s.identities = snap.Identities
	}
	s.logger.Info("loaded face store", zap.Int("identities", len(s.identities)))
	return nil
}

// save writes the full mapping to a temp file and renames it over the
// snapshot, so a concurrent reader of the file never observes a partial
// write. Caller must hold the write lock.
func (s *Store) save() error {
	data, err := json.Marshal(snapshot{Identities: s.identities})
	if err != nil {
		return fmt.Errorf("encode face store snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create face store directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".facestore-*")
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close snapshot temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// AddIdentity registers a new identity whose embedding is the element-wise
// mean of the supplied samples, and persists the snapshot. Returns the number
// of samples consumed. Identities are immutable once registered.
func (s *Store) AddIdentity(name string, samples [][]float32, studentID, email string) (int, error) {
	if len(samples) == 0 {
		return 0, ErrNoSamples
	}
	dim := len(samples[0])
	for _, sample := range samples[1:] {
		if len(sample) != dim {
			return 0, ErrDimensionMismatch
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.identities[name]; exists {
		return 0, fmt.Errorf("%w: %q", ErrDuplicateIdentity, name)
	}

	mean := make([]float32, dim)
	for _, sample := range samples {
		for i, v := range sample {
			mean[i] += v
		}
	}
	n := float32(len(samples))
	for i := range mean {
		mean[i] /= n
	}

	s.identities[name] = &Identity{
		Name:         name,
		Embedding:    mean,
		StudentID:    studentID,
		Email:        email,
		RegisteredAt: time.Now().UTC(),
	}
	if err := s.save(); err != nil {
		delete(s.identities, name)
		return 0, err
	}
	s.logger.Info("registered identity", zap.String("name", name), zap.Int("samples", len(samples)))
	return len(samples), nil
}

// Identify returns the stored identity with the highest cosine similarity to
// the query, with the score in [-1, 1]. On an empty store it returns
// (UnknownLabel, 0.0). Names are scanned in ascending order and only a
// strictly greater score replaces the current best, so on an exact tie the
// lexicographically first name wins.
func (s *Store) Identify(query []float32) (string, float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.identities) == 0 {
		return UnknownLabel, 0.0
	}

	normalized := normalize(query)
	bestName := UnknownLabel
	bestScore := -1.0
	for _, name := range s.sortedNames() {
		stored := s.identities[name].Embedding
		if len(stored) != len(query) {
			continue
		}
		score := dot(normalized, normalize(stored))
		if score > bestScore {
			bestScore = score
			bestName = name
		}
	}
	return bestName, bestScore
}

// FindByStudentID resolves a student ID to the registered name.
func (s *Store) FindByStudentID(studentID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, name := range s.sortedNames() {
		if s.identities[name].StudentID == studentID {
			return name, true
		}
	}
	return "", false
}

// Embedding returns a copy of the stored representative embedding for name.
func (s *Store) Embedding(name string) ([]float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.identities[name]
	if !ok {
		return nil, false
	}
	out := make([]float32, len(id.Embedding))
	copy(out, id.Embedding)
	return out, true
}

// Info returns the metadata for a registered name.
func (s *Store) Info(name string) (StudentInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.identities[name]
	if !ok {
		return StudentInfo{}, false
	}
	return infoOf(id), true
}

// DeletePerson removes an identity and persists the snapshot. Returns false
// without touching the snapshot when the name is absent.
func (s *Store) DeletePerson(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.identities[name]
	if !ok {
		return false
	}
	delete(s.identities, name)
	if err := s.save(); err != nil {
		s.identities[name] = id
		s.logger.Error("failed to persist face store after delete", zap.String("name", name), zap.Error(err))
		return false
	}
	s.logger.Info("deleted identity", zap.String("name", name))
	return true
}

// ListAll returns every registered identity's metadata, ordered by name.
func (s *Store) ListAll() []StudentInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]StudentInfo, 0, len(s.identities))
	for _, name := range s.sortedNames() {
		out = append(out, infoOf(s.identities[name]))
	}
	return out
}

// Count returns the number of registered identities.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.identities)
}

// sortedNames requires at least the read lock.
func (s *Store) sortedNames() []string {
	names := make([]string, 0, len(s.identities))
	for name := range s.identities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func infoOf(id *Identity) StudentInfo {
	return StudentInfo{
		Name:         id.Name,
		StudentID:    id.StudentID,
		Email:        id.Email,
		RegisteredAt: id.RegisteredAt,
	}
}

// normalize returns the L2-normalized vector in float64 precision. A zero
// vector is returned unscaled.
func normalize(v []float32) []float64 {
	out := make([]float64, len(v))
	var sum float64
	for i, x := range v {
		f := float64(x)
		out[i] = f
		sum += f * f
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return out
	}
	for i := range out {
		out[i] /= norm
	}
	return out
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
