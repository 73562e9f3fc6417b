package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/synaptica-ai/ehrprep/pkg/common/logger"
	"github.com/synaptica-ai/ehrprep/pkg/patientdata"
)

// FileStore reads tokenized inputs and writes run outputs as JSON containers
// on the local (or mounted) filesystem.
type FileStore struct {
	vocabCache *VocabularyCache
}

type Option func(*FileStore)

func WithVocabularyCache(cache *VocabularyCache) Option {
	return func(s *FileStore) {
		s.vocabCache = cache
	}
}

func NewFileStore(opts ...Option) *FileStore {
	s := &FileStore{}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *FileStore) LoadFeatures(path string) (patientdata.Features, error) {
	var features patientdata.Features
	if err := readJSON(path, &features); err != nil {
		return nil, fmt.Errorf("load features: %w", err)
	}
	return features, nil
}

// LoadPIDs reads a patient id list. Numeric ids are kept in their decimal form.
func (s *FileStore) LoadPIDs(path string) ([]string, error) {
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("load pids: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(content))
	dec.UseNumber()
	var raw []interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode pids %s: %w", path, err)
	}
	pids := make([]string, len(raw))
	for i, pid := range raw {
		pids[i] = fmt.Sprint(pid)
	}
	return pids, nil
}

// LoadVocabulary returns the vocabulary at the first candidate path that
// exists, consulting the cache first when one is configured.
func (s *FileStore) LoadVocabulary(ctx context.Context, candidates ...string) (patientdata.Vocabulary, error) {
	var lastErr error
	for _, path := range candidates {
		if s.vocabCache != nil {
			vocab, ok, err := s.vocabCache.Get(ctx, path)
			if err != nil {
				logger.Log.WithError(err).WithField("path", path).Warn("vocabulary cache read failed")
			} else if ok {
				return vocab, nil
			}
		}

		var vocab patientdata.Vocabulary
		err := readJSON(path, &vocab)
		if errors.Is(err, fs.ErrNotExist) {
			lastErr = err
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load vocabulary: %w", err)
		}

		if s.vocabCache != nil {
			if err := s.vocabCache.Set(ctx, path, vocab); err != nil {
				logger.Log.WithError(err).WithField("path", path).Warn("vocabulary cache write failed")
			}
		}
		return vocab, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no candidate paths")
	}
	return nil, fmt.Errorf("load vocabulary: %w", lastErr)
}

func (s *FileStore) LoadOutcomeTable(path string) (*patientdata.OutcomeTable, error) {
	var table patientdata.OutcomeTable
	if err := readJSON(path, &table); err != nil {
		return nil, fmt.Errorf("load outcomes: %w", err)
	}
	return &table, nil
}

// LoadOutcomes reads a per-patient outcome list where null marks a missing
// outcome.
func (s *FileStore) LoadOutcomes(path string) ([]patientdata.Outcome, error) {
	var outcomes []patientdata.Outcome
	if err := readJSON(path, &outcomes); err != nil {
		return nil, fmt.Errorf("load outcomes: %w", err)
	}
	return outcomes, nil
}

// SaveJSON writes v to path, creating parent directories.
func (s *FileStore) SaveJSON(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func readJSON(path string, v interface{}) error {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return err
	}
	defer file.Close()
	if err := json.NewDecoder(file).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
