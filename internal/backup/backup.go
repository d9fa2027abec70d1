// Package backup keeps generation-numbered copies of files before they are mutated.
package backup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Cyclone1070/gatekeep/internal/gateerr"
	"github.com/rs/zerolog"
)

const suffix = ".bak"

// Backup describes one stored generation of a file.
type Backup struct {
	OriginalPath string    `json:"originalPath"`
	BackupPath   string    `json:"backupPath"`
	Generation   int       `json:"generation"`
	CreatedAt    time.Time `json:"createdAt"`
}

type fileSystem interface {
	Stat(path string) (os.FileInfo, error)
	CopyFileAtomic(src, dst string) error
	Remove(path string) error
	ListDir(path string) ([]os.FileInfo, error)
}

// Options bound how many generations are kept.
type Options struct {
	// MaxGenerations is the number of generations kept per file. Values < 1 are treated as 1.
	MaxGenerations int
	// Retention removes generations older than this. Zero disables age-based pruning.
	Retention time.Duration
}

// Manager creates, lists, prunes and restores backups under a backup root
// that mirrors the project tree.
type Manager struct {
	projectRoot string
	dir         string
	fs          fileSystem
	opts        Options
	logger      zerolog.Logger
	now         func() time.Time

	mu   sync.Mutex
	last map[string]int // rel path -> highest generation handed out
}

// NewManager creates a Manager. projectRoot and dir must be absolute and clean.
func NewManager(projectRoot, dir string, fs fileSystem, opts Options, logger zerolog.Logger) *Manager {
	if projectRoot == "" || dir == "" {
		panic("projectRoot and dir are required")
	}
	if fs == nil {
		panic("fs is required")
	}
	if opts.MaxGenerations < 1 {
		opts.MaxGenerations = 1
	}
	return &Manager{
		projectRoot: projectRoot,
		dir:         dir,
		fs:          fs,
		opts:        opts,
		logger:      logger.With().Str("component", "backup").Logger(),
		now:         time.Now,
		last:        make(map[string]int),
	}
}

// Dir returns the backup root.
func (m *Manager) Dir() string {
	return m.dir
}

// CreateBackup copies the current content of path to a new generation.
// Any failure is a BackupFailed error and the caller must not mutate path.
// Pruning runs afterwards; a pruning failure is logged, not returned.
func (m *Manager) CreateBackup(path string) (*Backup, error) {
	b, err := m.copyGeneration(path)
	if err != nil {
		return nil, err
	}
	if err := m.Prune(path); err != nil {
		m.logger.Warn().Err(err).Str("path", path).Msg("prune after backup failed")
	}
	return b, nil
}

func (m *Manager) copyGeneration(path string) (*Backup, error) {
	rel, err := m.rel(path)
	if err != nil {
		return nil, gateerr.Wrap(gateerr.KindBackupFailed, "backup failed", err)
	}

	gen, err := m.nextGeneration(rel)
	if err != nil {
		return nil, gateerr.Wrap(gateerr.KindBackupFailed, "backup failed", err)
	}

	dst := m.backupPath(rel, gen)
	if err := m.fs.CopyFileAtomic(path, dst); err != nil {
		return nil, gateerr.Wrap(gateerr.KindBackupFailed, "backup failed", err)
	}

	b := &Backup{OriginalPath: path, BackupPath: dst, Generation: gen, CreatedAt: m.now()}
	m.logger.Debug().Str("path", rel).Int("generation", gen).Msg("backup created")
	return b, nil
}

// List returns the stored generations for path, oldest first.
func (m *Manager) List(path string) ([]Backup, error) {
	rel, err := m.rel(path)
	if err != nil {
		return nil, err
	}
	return m.scan(path, rel)
}

// Find returns one generation of path.
func (m *Manager) Find(path string, generation int) (*Backup, error) {
	list, err := m.List(path)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].Generation == generation {
			return &list[i], nil
		}
	}
	return nil, gateerr.Newf(gateerr.KindNotFound, "no backup generation %d", generation)
}

// Latest returns the newest generation of path.
func (m *Manager) Latest(path string) (*Backup, error) {
	list, err := m.List(path)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, gateerr.New(gateerr.KindNotFound, "no backups")
	}
	return &list[len(list)-1], nil
}

// Prune deletes generations beyond MaxGenerations or older than Retention.
// The newest generation is always kept.
func (m *Manager) Prune(path string) error {
	list, err := m.List(path)
	if err != nil {
		return err
	}
	if len(list) <= 1 {
		return nil
	}

	cutoff := time.Time{}
	if m.opts.Retention > 0 {
		cutoff = m.now().Add(-m.opts.Retention)
	}

	var errs []error
	// list is oldest first; index len-1 is the newest and is never removed.
	for i, b := range list[:len(list)-1] {
		keptNewer := len(list) - 1 - i // generations newer than b
		tooMany := keptNewer >= m.opts.MaxGenerations
		tooOld := !cutoff.IsZero() && b.CreatedAt.Before(cutoff)
		if !tooMany && !tooOld {
			continue
		}
		if err := m.fs.Remove(b.BackupPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Restore copies generation gen back over path. The current content, if
// any, is itself backed up first and returned.
func (m *Manager) Restore(path string, generation int) (restored *Backup, safety *Backup, err error) {
	restored, err = m.Find(path, generation)
	if err != nil {
		return nil, nil, err
	}
	if _, statErr := m.fs.Stat(path); statErr == nil {
		// Pruning waits until the restore is done so it cannot remove the
		// generation being restored.
		safety, err = m.copyGeneration(path)
		if err != nil {
			return nil, nil, err
		}
	}
	if err := m.fs.CopyFileAtomic(restored.BackupPath, path); err != nil {
		return nil, safety, fmt.Errorf("restore %s: %w", path, err)
	}
	if err := m.Prune(path); err != nil {
		m.logger.Warn().Err(err).Str("path", path).Msg("prune after restore failed")
	}
	return restored, safety, nil
}

func (m *Manager) rel(path string) (string, error) {
	rel, err := filepath.Rel(m.projectRoot, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is not a file below the project root", path)
	}
	return rel, nil
}

func (m *Manager) backupPath(rel string, gen int) string {
	return filepath.Join(m.dir, rel) + "." + strconv.Itoa(gen) + suffix
}

// nextGeneration hands out the next generation for rel. The first call for a
// path seeds the counter from disk so numbering survives restarts.
func (m *Manager) nextGeneration(rel string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	last, ok := m.last[rel]
	if !ok {
		list, err := m.scan(filepath.Join(m.projectRoot, rel), rel)
		if err != nil {
			return 0, err
		}
		if len(list) > 0 {
			last = list[len(list)-1].Generation
		}
	}
	last++
	m.last[rel] = last
	return last, nil
}

func (m *Manager) scan(path, rel string) ([]Backup, error) {
	base := filepath.Join(m.dir, rel)
	prefix := filepath.Base(base) + "."

	entries, err := m.fs.ListDir(filepath.Dir(base))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var out []Backup
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
			continue
		}
		gen, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, prefix), suffix))
		if err != nil || gen < 1 {
			continue
		}
		out = append(out, Backup{
			OriginalPath: path,
			BackupPath:   filepath.Join(filepath.Dir(base), name),
			Generation:   gen,
			CreatedAt:    e.ModTime(),
		})
	}
	slices.SortFunc(out, func(a, b Backup) int { return a.Generation - b.Generation })
	return out, nil
}
