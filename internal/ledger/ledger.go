// Package ledger journals every completed transfer in a local sqlite
// database so past activity can be inspected with `remote-sync history`.
package ledger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/glebarez/sqlite"
	"github.com/spf13/afero"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	Upload   = "upload"
	Download = "download"
	Rename   = "rename"
)

// Transfer is one journaled operation on one connection.
type Transfer struct {
	ID         uint      `gorm:"primarykey"`
	ConfigPath string    `gorm:"index;not null"`
	Connection string    `gorm:"not null"`
	Path       string    `gorm:"index;not null"`
	Direction  string    `gorm:"not null"`
	Size       int64     `gorm:"not null"`
	ModTime    time.Time `gorm:"not null"`
	Hash       string
	CreatedAt  time.Time
}

// Ledger is the transfer journal.
type Ledger struct {
	db *gorm.DB
	fs afero.Fs
}

// DefaultPath returns the journal location under the user cache dir.
func DefaultPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "remote-sync", "ledger.db")
}

// Open opens or creates the journal at dbPath. fsys is used to hash the
// local side of recorded transfers.
func Open(dbPath string, fsys afero.Fs) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %v", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&Transfer{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %v", err)
	}

	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &Ledger{db: db, fs: fsys}, nil
}

// HashFile returns the xxhash of a file's content.
func HashFile(fsys afero.Fs, path string) (string, error) {
	file, err := fsys.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := xxhash.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}

// Record journals a transfer of localPath on connection. Directories are
// recorded without a hash.
func (l *Ledger) Record(configPath, connection, localPath, direction string) error {
	t := Transfer{
		ConfigPath: configPath,
		Connection: connection,
		Path:       localPath,
		Direction:  direction,
	}

	if info, err := l.fs.Stat(localPath); err == nil {
		t.Size = info.Size()
		t.ModTime = info.ModTime()
		if !info.IsDir() {
			if h, err := HashFile(l.fs, localPath); err == nil {
				t.Hash = h
			}
		}
	}

	if err := l.db.Create(&t).Error; err != nil {
		return fmt.Errorf("failed to record transfer: %v", err)
	}
	return nil
}

// History returns the latest transfers, newest first. A non-empty path
// restricts it to that path and everything below it.
func (l *Ledger) History(path string, limit int) ([]Transfer, error) {
	q := l.db.Order("created_at desc, id desc")
	if path != "" {
		q = q.Where("path = ? OR path LIKE ?", path, filepath.Clean(path)+string(filepath.Separator)+"%")
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var out []Transfer
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to read history: %v", err)
	}
	return out, nil
}

// Reset deletes every record.
func (l *Ledger) Reset() (int64, error) {
	result := l.db.Unscoped().Delete(&Transfer{}, "1 = 1")
	if result.Error != nil {
		return 0, fmt.Errorf("failed to reset ledger: %v", result.Error)
	}
	return result.RowsAffected, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
