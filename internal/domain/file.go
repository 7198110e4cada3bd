package domain

import (
	"path"
	"path/filepath"
	"strings"
	"time"
)

// FileRecord represents a remote file discovered in a directory listing
type FileRecord struct {
	ID           string          `json:"id" gorm:"primaryKey"`
	DirectoryID  string          `json:"directory_id" gorm:"not null;index"`
	Directory    DirectoryRecord `json:"-" gorm:"foreignKey:DirectoryID"`
	FileName     string          `json:"file_name" gorm:"not null"`
	URL          string          `json:"url" gorm:"not null"`
	Size         int64           `json:"size" gorm:"default:0;index"`
	LastModified time.Time       `json:"last_modified"`
	Downloaded   bool            `json:"downloaded" gorm:"default:false;index"`
	CreatedAt    time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for GORM
func (FileRecord) TableName() string {
	return "files"
}

// DirectoryRecord represents a remote directory listing page
type DirectoryRecord struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	URL       string    `json:"url" gorm:"not null"`
	Scraped   bool      `json:"scraped" gorm:"default:false;index"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for GORM
func (DirectoryRecord) TableName() string {
	return "directories"
}

// NewFileRecord builds a file record keyed by its directory key and file name
func NewFileRecord(dir *DirectoryRecord, fileName, url string, size int64, lastModified time.Time) *FileRecord {
	return &FileRecord{
		ID:           FileKey(dir.ID, fileName),
		DirectoryID:  dir.ID,
		FileName:     fileName,
		URL:          url,
		Size:         size,
		LastModified: lastModified,
	}
}

// FileKey joins a directory key and a file name into a record ID
func FileKey(dirKey, fileName string) string {
	return path.Join(dirKey, fileName)
}

// PendingFile is a file record joined with the directory it belongs to
type PendingFile struct {
	FileRecord
}

// LocalDir returns the directory the file is saved into under base
func (f *PendingFile) LocalDir(base string) string {
	return filepath.Join(base, filepath.FromSlash(f.Directory.ID))
}

// LocalPath returns the full local path of the file under base
func (f *PendingFile) LocalPath(base string) string {
	return filepath.Join(f.LocalDir(base), f.FileName)
}

// PendingFilter selects the files a download run works on
type PendingFilter struct {
	PathPrefix string // record ID prefix, empty matches everything
	PathGlob   string // optional SQLite GLOB over the record ID
	MaxSize    int64  // exclusive size ceiling, 0 disables it
}

// Matches reports whether a record satisfies the filter
func (f PendingFilter) Matches(rec *FileRecord) bool {
	if rec.Downloaded {
		return false
	}
	if f.PathPrefix != "" && !strings.HasPrefix(rec.ID, f.PathPrefix) {
		return false
	}
	if f.PathGlob != "" && !globMatch(f.PathGlob, rec.ID) {
		return false
	}
	return f.MaxSize <= 0 || rec.Size < f.MaxSize
}

// globMatch matches name against pattern like SQLite GLOB, where * and ?
// also match '/'
func globMatch(pattern, name string) bool {
	const sep = "\x00"
	ok, err := path.Match(strings.ReplaceAll(pattern, "/", sep), strings.ReplaceAll(name, "/", sep))
	return err == nil && ok
}

// PendingTotals is the aggregate over all records matching a filter
type PendingTotals struct {
	TotalBytes int64 `json:"total_bytes"`
	TotalCount int64 `json:"total_count"`
}

// FileStats represents store-wide statistics
type FileStats struct {
	Directories        int64 `json:"directories"`
	ScrapedDirectories int64 `json:"scraped_directories"`
	Files              int64 `json:"files"`
	DownloadedFiles    int64 `json:"downloaded_files"`
	TotalBytes         int64 `json:"total_bytes"`
	DownloadedBytes    int64 `json:"downloaded_bytes"`
}
