package infrastructure

import (
	"context"
	"fmt"
	"strings"

	"github.com/ttscraper/ttscraper-go/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const defaultCursorBatch = 50

// SQLiteFileRepository implements FileStore and CatalogRepository using SQLite
type SQLiteFileRepository struct {
	db *gorm.DB
}

// NewSQLiteFileRepository creates a new SQLite repository
func NewSQLiteFileRepository(dbPath string) (*SQLiteFileRepository, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: downloads write back while discovery upserts
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&domain.DirectoryRecord{}, &domain.FileRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteFileRepository{db: db}, nil
}

// pending scopes a query to records matching the filter
func pending(filter domain.PendingFilter) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		db = db.Where("files.downloaded = ?", false)
		if filter.PathPrefix != "" {
			db = db.Where("files.id LIKE ? ESCAPE '\\'", escapeLike(filter.PathPrefix)+"%")
		}
		if filter.PathGlob != "" {
			db = db.Where("files.id GLOB ?", filter.PathGlob)
		}
		if filter.MaxSize > 0 {
			db = db.Where("files.size < ?", filter.MaxSize)
		}
		return db
	}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// CountPending aggregates size and count over records matching the filter
func (r *SQLiteFileRepository) CountPending(ctx context.Context, filter domain.PendingFilter) (domain.PendingTotals, error) {
	var totals domain.PendingTotals
	err := r.db.WithContext(ctx).
		Model(&domain.FileRecord{}).
		Scopes(pending(filter)).
		Select("COALESCE(SUM(files.size), 0) AS total_bytes, COUNT(*) AS total_count").
		Scan(&totals).Error
	if err != nil {
		return domain.PendingTotals{}, fmt.Errorf("failed to count pending files: %w", err)
	}
	return totals, nil
}

// PendingStream opens a cursor over records matching the filter
func (r *SQLiteFileRepository) PendingStream(ctx context.Context, filter domain.PendingFilter) (domain.FileCursor, error) {
	return r.PendingStreamWithBatch(ctx, filter, defaultCursorBatch)
}

// PendingStreamWithBatch opens a cursor fetching batch records per query
func (r *SQLiteFileRepository) PendingStreamWithBatch(ctx context.Context, filter domain.PendingFilter, batch int) (domain.FileCursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if batch < 1 {
		batch = defaultCursorBatch
	}
	return &sqliteFileCursor{db: r.db, filter: filter, batch: batch}, nil
}

// MarkComplete flags a record as downloaded with its observed size
func (r *SQLiteFileRepository) MarkComplete(ctx context.Context, id string, size int64) error {
	return r.db.WithContext(ctx).
		Model(&domain.FileRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"downloaded": true,
			"size":       size,
		}).Error
}

// EnsureDirectory inserts the directory if no record with its ID exists
func (r *SQLiteFileRepository) EnsureDirectory(ctx context.Context, dir *domain.DirectoryRecord) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(dir)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// FindUnscrapedDirectories returns directories whose listing was not scraped yet
func (r *SQLiteFileRepository) FindUnscrapedDirectories(ctx context.Context) ([]*domain.DirectoryRecord, error) {
	var dirs []*domain.DirectoryRecord
	err := r.db.WithContext(ctx).
		Where("scraped = ?", false).
		Order("id ASC").
		Find(&dirs).Error
	return dirs, err
}

// MarkDirectoryScraped flags a directory listing as scraped
func (r *SQLiteFileRepository) MarkDirectoryScraped(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&domain.DirectoryRecord{}).
		Where("id = ?", id).
		Update("scraped", true).Error
}

// UpsertFile inserts a file or refreshes its listing attributes
func (r *SQLiteFileRepository) UpsertFile(ctx context.Context, file *domain.FileRecord) error {
	return r.db.WithContext(ctx).
		Omit("Directory").
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"directory_id", "file_name", "url", "size", "last_modified", "updated_at"}),
		}).Create(file).Error
}

// FindFile finds a file by ID
func (r *SQLiteFileRepository) FindFile(ctx context.Context, id string) (*domain.FileRecord, error) {
	var file domain.FileRecord
	err := r.db.WithContext(ctx).First(&file, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &file, nil
}

// GetStats returns store-wide statistics
func (r *SQLiteFileRepository) GetStats(ctx context.Context) (*domain.FileStats, error) {
	stats := &domain.FileStats{}
	db := r.db.WithContext(ctx)

	if err := db.Model(&domain.DirectoryRecord{}).Count(&stats.Directories).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&domain.DirectoryRecord{}).Where("scraped = ?", true).Count(&stats.ScrapedDirectories).Error; err != nil {
		return nil, err
	}

	fileCounts := []struct {
		Downloaded bool
		Count      int64
		Bytes      int64
	}{}

	if err := db.Model(&domain.FileRecord{}).
		Select("downloaded, count(*) as count, COALESCE(SUM(size), 0) as bytes").
		Group("downloaded").
		Scan(&fileCounts).Error; err != nil {
		return nil, err
	}

	for _, fc := range fileCounts {
		stats.Files += fc.Count
		stats.TotalBytes += fc.Bytes
		if fc.Downloaded {
			stats.DownloadedFiles = fc.Count
			stats.DownloadedBytes = fc.Bytes
		}
	}

	return stats, nil
}

// Close closes the database connection
func (r *SQLiteFileRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// sqliteFileCursor pages through pending files by ascending ID so that each
// batch reflects the current contents of the table
type sqliteFileCursor struct {
	db     *gorm.DB
	filter domain.PendingFilter
	batch  int
	lastID string
	buf    []*domain.FileRecord
	done   bool
}

// Next returns the next pending file or ErrStreamExhausted
func (c *sqliteFileCursor) Next(ctx context.Context) (*domain.PendingFile, error) {
	for {
		if len(c.buf) == 0 {
			if c.done {
				return nil, domain.ErrStreamExhausted
			}
			if err := c.fill(ctx); err != nil {
				return nil, err
			}
			continue
		}

		rec := c.buf[0]
		c.buf = c.buf[1:]

		// Files without a directory record are dropped like an inner join
		if rec.Directory.ID == "" {
			continue
		}
		return &domain.PendingFile{FileRecord: *rec}, nil
	}
}

func (c *sqliteFileCursor) fill(ctx context.Context) error {
	var recs []*domain.FileRecord
	query := c.db.WithContext(ctx).
		Preload("Directory").
		Scopes(pending(c.filter))
	if c.lastID != "" {
		query = query.Where("files.id > ?", c.lastID)
	}
	err := query.Order("files.id ASC").Limit(c.batch).Find(&recs).Error
	if err != nil {
		return fmt.Errorf("failed to fetch pending files: %w", err)
	}

	if len(recs) < c.batch {
		c.done = true
	}
	if len(recs) > 0 {
		c.lastID = recs[len(recs)-1].ID
	}
	c.buf = recs
	return nil
}

// Close releases the cursor
func (c *sqliteFileCursor) Close() error {
	c.buf = nil
	c.done = true
	return nil
}
