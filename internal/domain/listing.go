package domain

import (
	"context"
	"time"
)

// RootDirectoryKey is the key of the listing root directory
const RootDirectoryKey = "."

// TreeNode is a node of the remote directory tree document
type TreeNode struct {
	Type     string     `json:"type"`
	Name     string     `json:"name"`
	Contents []TreeNode `json:"contents,omitempty"`
}

// ListingEntry is a file row scraped from a directory listing page
type ListingEntry struct {
	FileName     string
	URL          string
	Size         int64
	LastModified time.Time
}

// ListingSource reads the remote site
type ListingSource interface {
	// FetchTimestamp returns the remote tree timestamp
	FetchTimestamp(ctx context.Context) (int64, error)

	// FetchTree returns the raw remote tree document
	FetchTree(ctx context.Context) ([]byte, error)

	// DirectoryURL returns the listing page URL of a directory key
	DirectoryURL(key string) string

	// FetchListing scrapes the file rows of a directory listing page
	FetchListing(ctx context.Context, pageURL string) ([]ListingEntry, error)
}
