// Package file serves quiz definitions from a YAML document on disk.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"live-quiz-service/internal/domain"
)

const reloadDebounce = 100 * time.Millisecond

// Document is the on-disk layout of a quiz file.
type Document struct {
	Quizzes []domain.Quiz `yaml:"quizzes"`
}

// Read parses and validates every quiz in the YAML file at path.
func Read(path string) ([]domain.Quiz, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	seen := make(map[string]struct{}, len(doc.Quizzes))
	for _, quiz := range doc.Quizzes {
		if err := quiz.Validate(); err != nil {
			return nil, fmt.Errorf("%s: quiz %q: %w", path, quiz.ID, err)
		}
		if _, dup := seen[quiz.ID]; dup {
			return nil, fmt.Errorf("%s: %w: duplicate quiz id %q", path, domain.ErrInvalidQuiz, quiz.ID)
		}
		seen[quiz.ID] = struct{}{}
	}
	return doc.Quizzes, nil
}

// Loader keeps the quizzes of one YAML file in memory.
type Loader struct {
	path   string
	logger *zap.Logger

	mu      sync.RWMutex
	quizzes map[string]domain.Quiz
}

// NewLoader reads path once; use Watch to follow later edits.
func NewLoader(path string, logger *zap.Logger) (*Loader, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	l := &Loader{path: abs, logger: logger}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Loader) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if quiz, ok := l.quizzes[quizID]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}

// ListQuizIDs returns the ids of quizzes owned by owner, or all when owner is empty.
func (l *Loader) ListQuizIDs(_ context.Context, owner string) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.quizzes))
	for id, quiz := range l.quizzes {
		if owner == "" || quiz.Owner == owner {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Reload re-reads the file. On error the previous definitions stay in place.
func (l *Loader) Reload() error {
	quizzes, err := Read(l.path)
	if err != nil {
		return err
	}
	byID := make(map[string]domain.Quiz, len(quizzes))
	for _, quiz := range quizzes {
		byID[quiz.ID] = quiz
	}
	l.mu.Lock()
	l.quizzes = byID
	l.mu.Unlock()
	return nil
}

// Watch reloads the file whenever it changes and then calls onChange, until ctx is done.
// The parent directory is watched so editors that replace the file are followed.
func (l *Loader) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(l.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(l.path), err)
	}

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != l.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				pending = time.After(reloadDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Warn("quiz file watcher error", zap.Error(err))
		case <-pending:
			pending = nil
			if err := l.Reload(); err != nil {
				l.logger.Warn("quiz file reload failed, keeping previous definitions",
					zap.String("path", l.path), zap.Error(err))
				continue
			}
			l.logger.Info("quiz file reloaded", zap.String("path", l.path))
			if onChange != nil {
				onChange()
			}
		}
	}
}
