package app

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/sourcegraph/conc/pool"
	"github.com/ttscraper/ttscraper-go/internal/domain"
	"go.uber.org/zap"
)

const (
	treeTypeDirectory = "directory"
	treeTypeFile      = "file"
)

// DiscoveryService crawls the remote tree and listing pages into the catalog
type DiscoveryService struct {
	source  domain.ListingSource
	catalog domain.CatalogRepository
	cache   domain.TreeCache
	config  *domain.DownloadConfig
	logger  *zap.Logger
}

// NewDiscoveryService creates a new discovery service
func NewDiscoveryService(
	source domain.ListingSource,
	catalog domain.CatalogRepository,
	cache domain.TreeCache,
	config *domain.DownloadConfig,
	logger *zap.Logger,
) *DiscoveryService {
	return &DiscoveryService{
		source:  source,
		catalog: catalog,
		cache:   cache,
		config:  config,
		logger:  logger,
	}
}

// Discover loads the tree, records its directories and scrapes the
// listings that were not scraped yet
func (d *DiscoveryService) Discover(ctx context.Context) (*domain.DiscoverySummary, error) {
	summary := &domain.DiscoverySummary{}

	tree, fromCache, err := d.LoadTree(ctx)
	if err != nil {
		return summary, err
	}
	summary.TreeFromCache = fromCache

	summary.Directories, summary.NewDirectories, err = d.GenerateDirectories(ctx, tree)
	if err != nil {
		return summary, err
	}

	summary.ScrapedDirs, summary.FailedDirs, summary.Files, err = d.FetchDirectoryFiles(ctx)
	return summary, err
}

// LoadTree returns the remote tree, from the cache when the remote
// timestamp did not change
func (d *DiscoveryService) LoadTree(ctx context.Context) ([]domain.TreeNode, bool, error) {
	remoteTs, err := d.source.FetchTimestamp(ctx)
	if err != nil {
		return nil, false, err
	}

	cachedTs, cached, ok, err := d.cache.Load(ctx)
	if err != nil {
		d.logger.Warn("Failed to load tree cache", zap.Error(err))
	}
	if ok && cachedTs == remoteTs {
		var tree []domain.TreeNode
		if err := json.Unmarshal(cached, &tree); err == nil {
			d.logger.Info("Loading tree from local cache", zap.Int64("timestamp", remoteTs))
			return tree, true, nil
		}
		d.logger.Warn("Cached tree is invalid, fetching again", zap.Error(err))
	}

	d.logger.Info("Fetching tree from server", zap.Int64("timestamp", remoteTs))
	raw, err := d.source.FetchTree(ctx)
	if err != nil {
		return nil, false, err
	}

	var tree []domain.TreeNode
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, false, fmt.Errorf("failed to parse tree: %w", err)
	}

	if err := d.cache.Store(ctx, remoteTs, raw); err != nil {
		d.logger.Warn("Failed to cache tree", zap.Error(err))
	}
	return tree, false, nil
}

// GenerateDirectories inserts a record for every directory of the tree
// that is not known yet. It returns the directory count and how many
// were inserted.
func (d *DiscoveryService) GenerateDirectories(ctx context.Context, tree []domain.TreeNode) (int, int, error) {
	if len(tree) == 0 {
		return 0, 0, fmt.Errorf("tree is empty")
	}

	d.logger.Info("Generating directories urls")

	root := tree[0]
	root.Name = ""

	var keys []string
	d.collectDirectories(root, "", &keys)

	created := 0
	for _, key := range keys {
		inserted, err := d.catalog.EnsureDirectory(ctx, &domain.DirectoryRecord{
			ID:  key,
			URL: d.source.DirectoryURL(key),
		})
		if err != nil {
			return len(keys), created, fmt.Errorf("failed to save directory %s: %w", key, err)
		}
		if inserted {
			created++
		}
	}

	d.logger.Info("Directories generated",
		zap.Int("directories", len(keys)),
		zap.Int("new", created))
	return len(keys), created, nil
}

func (d *DiscoveryService) collectDirectories(node domain.TreeNode, parent string, keys *[]string) {
	switch node.Type {
	case treeTypeDirectory:
		key := path.Join(parent, node.Name)
		if key == "" {
			key = domain.RootDirectoryKey
		}
		*keys = append(*keys, key)

		for _, child := range node.Contents {
			d.collectDirectories(child, path.Join(parent, node.Name), keys)
		}
	case treeTypeFile:
		// files are read from the listing pages
	default:
		d.logger.Warn("Unknown tree type", zap.String("type", node.Type), zap.String("name", node.Name))
	}
}

type dirResult struct {
	files int
	err   error
}

// FetchDirectoryFiles scrapes every unscraped directory listing and upserts
// its files. A failed directory is logged and stays unscraped.
func (d *DiscoveryService) FetchDirectoryFiles(ctx context.Context) (scraped, failed, files int, err error) {
	dirs, err := d.catalog.FindUnscrapedDirectories(ctx)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to list unscraped directories: %w", err)
	}
	if len(dirs) == 0 {
		d.logger.Info("No directories files to fetch")
		return 0, 0, 0, nil
	}

	parallel := d.config.ParallelDirFetches
	if parallel < 1 {
		parallel = 1
	}

	d.logger.Info("Fetching directories files from server",
		zap.Int("directories", len(dirs)),
		zap.Int("parallel", parallel))

	p := pool.NewWithResults[dirResult]().WithMaxGoroutines(parallel)
	for _, dir := range dirs {
		dir := dir
		p.Go(func() dirResult {
			if ctx.Err() != nil {
				return dirResult{err: ctx.Err()}
			}
			n, err := d.scrapeDirectory(ctx, dir)
			if err != nil {
				d.logger.Error("Failed to fetch directory files",
					zap.String("directory", dir.ID),
					zap.String("url", dir.URL),
					zap.Error(err))
			}
			return dirResult{files: n, err: err}
		})
	}

	for _, res := range p.Wait() {
		if res.err != nil {
			failed++
			continue
		}
		scraped++
		files += res.files
	}

	if err := ctx.Err(); err != nil {
		return scraped, failed, files, err
	}

	d.logger.Info("Directories files fetched",
		zap.Int("scraped", scraped),
		zap.Int("failed", failed),
		zap.Int("files", files))
	return scraped, failed, files, nil
}

func (d *DiscoveryService) scrapeDirectory(ctx context.Context, dir *domain.DirectoryRecord) (int, error) {
	entries, err := d.source.FetchListing(ctx, dir.URL)
	if err != nil {
		return 0, err
	}

	for _, entry := range entries {
		file := domain.NewFileRecord(dir, entry.FileName, entry.URL, entry.Size, entry.LastModified)
		if err := d.catalog.UpsertFile(ctx, file); err != nil {
			return 0, fmt.Errorf("failed to save file %s: %w", file.ID, err)
		}
	}

	if err := d.catalog.MarkDirectoryScraped(ctx, dir.ID); err != nil {
		return 0, fmt.Errorf("failed to mark directory scraped: %w", err)
	}
	return len(entries), nil
}
