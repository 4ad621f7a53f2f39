package database

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// BackupService periodically copies the sqlite file aside. WAL mode keeps
// the main file consistent for readers, so a plain file copy is a usable
// snapshot.
type BackupService struct {
	dbPath   string
	dir      string
	interval time.Duration
	keep     int
	logger   *zerolog.Logger
}

// NewBackupService creates the backup loop. keep bounds how many snapshots
// are retained; older ones are pruned after each run.
func NewBackupService(dbPath, dir string, interval time.Duration, keep int, logger *zerolog.Logger) *BackupService {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if keep <= 0 {
		keep = 7
	}
	return &BackupService{dbPath: dbPath, dir: dir, interval: interval, keep: keep, logger: logger}
}

// Start runs backups on the configured interval until the context is
// cancelled.
func (s *BackupService) Start(ctx context.Context) {
	s.logger.Info().
		Str("dir", s.dir).
		Dur("interval", s.interval).
		Msg("Backup service started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Run(ctx); err != nil {
				s.logger.Error().Err(err).Msg("backup failed")
			}
		}
	}
}

// Run performs one backup and prunes old snapshots.
func (s *BackupService) Run(_ context.Context) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}

	name := fmt.Sprintf("colivero_%s.db", time.Now().UTC().Format("20060102_150405"))
	dst := filepath.Join(s.dir, name)

	if err := copyFile(s.dbPath, dst); err != nil {
		return err
	}
	s.logger.Info().Str("file", dst).Msg("backup written")

	return s.prune()
}

func (s *BackupService) prune() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}

	var backups []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "colivero_") && strings.HasSuffix(e.Name(), ".db") {
			backups = append(backups, e.Name())
		}
	}
	if len(backups) <= s.keep {
		return nil
	}

	// Timestamped names sort chronologically.
	sort.Strings(backups)
	for _, name := range backups[:len(backups)-s.keep] {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			s.logger.Warn().Err(err).Str("file", name).Msg("prune backup failed")
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create backup: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy backup: %w", err)
	}
	return out.Sync()
}
