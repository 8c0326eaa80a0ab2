// Package dump manages timestamped cache dump files on disk.
//
// A dump file name embeds the wall-clock instant of the update it reflects
// and a format version: "2006-01-02T15-04-05.000000Z-v0". The fixed-width
// layout makes lexical order match chronological order. Files of a foreign
// format version or with unparseable names are ignored when looking up the
// latest dump and removed by Cleanup.
package dump

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dailyyoga/cachekit/logger"
	"go.uber.org/zap"
)

// FormatVersion is bumped when the dump serialization format changes
// incompatibly; dumps of other versions are never loaded
const FormatVersion = 0

// timeLayout is the fixed-width UTC layout embedded in dump file names.
// Colons are avoided for portability.
const timeLayout = "2006-01-02T15-04-05.000000Z"

const tmpSuffix = ".tmp"

// Info describes a finished dump file on disk
type Info struct {
	// Path is the absolute or dir-relative path of the dump file
	Path string
	// UpdateTime is the update instant embedded in the file name
	UpdateTime time.Time
}

// Manager owns the dump file namespace of a single cache. All methods
// perform blocking filesystem work; callers confine them to a filesystem
// processor.
type Manager struct {
	name string
	log  logger.Logger
	cfg  *Config
}

// NewManager creates a dump manager and ensures the dump directory exists
func NewManager(log logger.Logger, name string, cfg *Config) (*Manager, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig("config is required")
	}
	cfg.MergeDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, ErrScanDir(cfg.Dir, err)
	}

	return &Manager{
		name: name,
		log:  log,
		cfg:  cfg,
	}, nil
}

// Name returns the cache name this manager serves
func (m *Manager) Name() string {
	return m.name
}

// TruncateTime normalizes an update instant to the resolution representable
// in a dump file name. All timestamps entering the dump namespace go
// through it, so equality checks against file names are exact.
func TruncateTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// FileName returns the dump file name for an update instant
func FileName(updateTime time.Time) string {
	return TruncateTime(updateTime).Format(timeLayout) + "-v" + strconv.Itoa(FormatVersion)
}

// parseFileName extracts the update instant from a dump file name.
// It reports false for tmp files, foreign versions and junk.
func parseFileName(name string) (time.Time, bool) {
	if strings.HasSuffix(name, tmpSuffix) {
		return time.Time{}, false
	}
	idx := strings.LastIndex(name, "-v")
	if idx < 0 {
		return time.Time{}, false
	}
	version, err := strconv.Atoi(name[idx+2:])
	if err != nil || version != FormatVersion {
		return time.Time{}, false
	}
	t, err := time.Parse(timeLayout, name[:idx])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// GetLatestDump returns the newest readable dump, or nil if there is none
func (m *Manager) GetLatestDump() (*Info, error) {
	dumps, err := m.listDumps()
	if err != nil {
		return nil, err
	}
	if len(dumps) == 0 {
		return nil, nil
	}
	latest := dumps[len(dumps)-1]
	return &latest, nil
}

// RegisterNewDump reserves a path for a dump reflecting updateTime
func (m *Manager) RegisterNewDump(updateTime time.Time) string {
	return filepath.Join(m.cfg.Dir, FileName(updateTime))
}

// BumpDumpTime renames the dump for oldTime so its embedded timestamp
// becomes newTime, without rewriting contents. Returns ErrBumpMissing if
// the old dump is no longer present.
func (m *Manager) BumpDumpTime(oldTime, newTime time.Time) error {
	oldPath := filepath.Join(m.cfg.Dir, FileName(oldTime))
	newPath := filepath.Join(m.cfg.Dir, FileName(newTime))

	if oldPath == newPath {
		return nil
	}
	if _, err := os.Stat(oldPath); err != nil {
		if os.IsNotExist(err) {
			return ErrBumpMissing
		}
		return err
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		return err
	}

	m.log.Debug("bumped dump time",
		zap.String("cache", m.name),
		zap.Time("old_time", TruncateTime(oldTime)),
		zap.Time("new_time", TruncateTime(newTime)),
	)
	return nil
}

// Cleanup removes dumps beyond the retention policy: everything past the
// newest MaxCount, everything older than MaxAge (when set), stale tmp
// files, and files of foreign format versions.
func (m *Manager) Cleanup() {
	entries, err := os.ReadDir(m.cfg.Dir)
	if err != nil {
		m.log.Error("failed to clean up dump dir",
			zap.String("cache", m.name),
			zap.String("dir", m.cfg.Dir),
			zap.Error(err),
		)
		return
	}

	var dumps []Info
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		updateTime, ok := parseFileName(entry.Name())
		if !ok {
			// tmp leftovers and foreign-version dumps are dead weight
			m.removeFile(filepath.Join(m.cfg.Dir, entry.Name()))
			continue
		}
		dumps = append(dumps, Info{
			Path:       filepath.Join(m.cfg.Dir, entry.Name()),
			UpdateTime: updateTime,
		})
	}

	sort.Slice(dumps, func(i, j int) bool {
		return dumps[i].UpdateTime.Before(dumps[j].UpdateTime)
	})

	keepFrom := len(dumps) - m.cfg.MaxCount
	if keepFrom < 0 {
		keepFrom = 0
	}
	for i, d := range dumps {
		expired := m.cfg.MaxAge > 0 && time.Since(d.UpdateTime) > m.cfg.MaxAge
		if i < keepFrom || expired {
			m.removeFile(d.Path)
		}
	}
}

func (m *Manager) removeFile(path string) {
	if err := os.Remove(path); err != nil {
		m.log.Error("failed to remove old dump",
			zap.String("cache", m.name),
			zap.String("path", path),
			zap.Error(err),
		)
		return
	}
	m.log.Debug("removed old dump",
		zap.String("cache", m.name),
		zap.String("path", path),
	)
}

// listDumps returns finished dumps sorted by update time ascending
func (m *Manager) listDumps() ([]Info, error) {
	entries, err := os.ReadDir(m.cfg.Dir)
	if err != nil {
		return nil, ErrScanDir(m.cfg.Dir, err)
	}

	var dumps []Info
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		updateTime, ok := parseFileName(entry.Name())
		if !ok {
			continue
		}
		dumps = append(dumps, Info{
			Path:       filepath.Join(m.cfg.Dir, entry.Name()),
			UpdateTime: updateTime,
		})
	}

	sort.Slice(dumps, func(i, j int) bool {
		return dumps[i].UpdateTime.Before(dumps[j].UpdateTime)
	})
	return dumps, nil
}
