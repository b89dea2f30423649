// Package store persists model weights on disk, one JSON file per key and
// round under a run directory.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/inference-sim/shufflefl/sim"
)

var (
	ErrNotFound   = sim.ErrCheckpointNotFound
	ErrInvalidKey = errors.New("invalid checkpoint key")
)

var _ sim.Checkpointer = (*FileStore)(nil)

// FileStore lays checkpoints out as <root>/<key segments>/round_<n>.json.
type FileStore struct {
	root string
	mu   sync.RWMutex
}

// NewFileStore creates root if needed.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &FileStore{root: root}, nil
}

// Root returns the store directory.
func (s *FileStore) Root() string { return s.root }

// SaveWeights writes w for key at round, replacing any previous checkpoint.
func (s *FileStore) SaveWeights(ctx context.Context, key string, round int, w sim.Weights) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := s.dir(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	f, err := os.CreateTemp(dir, ".round-*")
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %w", err)
	}
	defer os.Remove(f.Name()) // no-op once renamed
	defer f.Close()

	enc := json.NewEncoder(f)
	if err := enc.Encode(w); err != nil {
		return fmt.Errorf("failed to marshal weights: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}
	if err := os.Rename(f.Name(), filepath.Join(dir, roundFile(round))); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}
	return nil
}

// LoadWeights reads the checkpoint for key at round.
func (s *FileStore) LoadWeights(ctx context.Context, key string, round int) (sim.Weights, error) {
	if err := ctx.Err(); err != nil {
		return sim.Weights{}, err
	}
	dir, err := s.dir(key)
	if err != nil {
		return sim.Weights{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := os.Open(filepath.Join(dir, roundFile(round)))
	if errors.Is(err, fs.ErrNotExist) {
		return sim.Weights{}, fmt.Errorf("%w: %s round %d", ErrNotFound, key, round)
	}
	if err != nil {
		return sim.Weights{}, fmt.Errorf("failed to read checkpoint file: %w", err)
	}
	defer f.Close()

	var w sim.Weights
	if err := json.NewDecoder(f).Decode(&w); err != nil {
		return sim.Weights{}, fmt.Errorf("failed to unmarshal weights: %w", err)
	}
	return w, nil
}

// Rounds lists the rounds checkpointed for key in ascending order.
func (s *FileStore) Rounds(key string) ([]int, error) {
	dir, err := s.dir(key)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rounds []int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		var round int
		if _, err := fmt.Sscanf(entry.Name(), "round_%d.json", &round); err == nil {
			rounds = append(rounds, round)
		}
	}
	sort.Ints(rounds)
	return rounds, nil
}

// Latest returns the highest checkpointed round for key.
func (s *FileStore) Latest(ctx context.Context, key string) (int, sim.Weights, error) {
	rounds, err := s.Rounds(key)
	if err != nil {
		return 0, sim.Weights{}, err
	}
	if len(rounds) == 0 {
		return 0, sim.Weights{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	last := rounds[len(rounds)-1]
	w, err := s.LoadWeights(ctx, key, last)
	return last, w, err
}

func roundFile(round int) string {
	return fmt.Sprintf("round_%d.json", round)
}

// dir maps a slash-separated key onto a directory below root. Every segment
// is sanitized; a key that sanitizes to nothing is rejected.
func (s *FileStore) dir(key string) (string, error) {
	parts := []string{s.root}
	for _, seg := range strings.Split(key, "/") {
		clean := sanitizeSegment(seg)
		if clean == "" {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
		parts = append(parts, clean)
	}
	return filepath.Join(parts...), nil
}

// sanitizeSegment keeps only characters safe in a file name and drops
// parent-directory references.
func sanitizeSegment(seg string) string {
	seg = strings.ReplaceAll(seg, "..", "")
	var b strings.Builder
	for _, r := range seg {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "." {
		return ""
	}
	return out
}
