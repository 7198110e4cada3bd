package infrastructure

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ttscraper/ttscraper-go/internal/domain"
	"go.uber.org/zap"
)

const listingPage = `<html><body>
<div class="litem dir"><span class="litem_name"><a href="Sub/">Sub</a></span></div>
<div class="litem file">
  <span class="litem_name"><a href="a%20book.pdf">a book.pdf</a></span>
  <span class="litem_modified">2019-05-12 10:33</span>
  <span class="litem_size">1.5 MB</span>
</div>
<div class="litem file">
  <span class="litem_name"><a href="/abs/b.epub">b.epub</a></span>
  <span class="litem_modified">garbage</span>
  <span class="litem_size">-</span>
</div>
<div class="litem file"><span class="litem_name">no link</span></div>
</body></html>`

func newListingServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/timestamp.txt", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "1700000000\n")
	})
	mux.HandleFunc("/tree.json", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"type":"directory","name":"root","contents":[]}]`)
	})
	mux.HandleFunc("/Books/index.html", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, listingPage)
	})
	return httptest.NewServer(mux)
}

func newTestListingClient(t *testing.T, rootURL string) *ListingClient {
	t.Helper()
	client, err := NewListingClient(&domain.EndpointConfig{
		RootURL:       rootURL,
		TimestampFile: "timestamp.txt",
		TreeFile:      "tree.json",
	}, 5*time.Second, zap.NewNop())
	require.NoError(t, err)
	return client
}

func TestNewListingClient_RequiresRootURL(t *testing.T) {
	_, err := NewListingClient(&domain.EndpointConfig{}, time.Second, zap.NewNop())
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestListingClient_FetchTimestampAndTree(t *testing.T) {
	server := newListingServer(t)
	defer server.Close()

	client := newTestListingClient(t, server.URL)

	ts, err := client.FetchTimestamp(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), ts)

	tree, err := client.FetchTree(context.Background())
	require.NoError(t, err)
	assert.Contains(t, string(tree), `"directory"`)
}

func TestListingClient_FetchListing(t *testing.T) {
	server := newListingServer(t)
	defer server.Close()

	client := newTestListingClient(t, server.URL)

	entries, err := client.FetchListing(context.Background(), client.DirectoryURL("Books"))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "a book.pdf", entries[0].FileName)
	assert.Equal(t, server.URL+"/Books/a%20book.pdf", entries[0].URL)
	assert.Equal(t, int64(1500000), entries[0].Size)
	assert.Equal(t, time.Date(2019, 5, 12, 10, 33, 0, 0, time.UTC), entries[0].LastModified)

	assert.Equal(t, "b.epub", entries[1].FileName)
	assert.Equal(t, server.URL+"/abs/b.epub", entries[1].URL)
	assert.Equal(t, int64(0), entries[1].Size)
	assert.True(t, entries[1].LastModified.IsZero())
}

func TestListingClient_FetchListingNotFound(t *testing.T) {
	server := newListingServer(t)
	defer server.Close()

	client := newTestListingClient(t, server.URL)

	_, err := client.FetchListing(context.Background(), client.DirectoryURL("Missing"))
	assert.Error(t, err)
}

func TestListingClient_DirectoryURL(t *testing.T) {
	client := newTestListingClient(t, "https://example.com/files")

	assert.Equal(t, "https://example.com/files/index.html", client.DirectoryURL(domain.RootDirectoryKey))
	assert.Equal(t, "https://example.com/files/Books/Sci%20Fi/index.html", client.DirectoryURL("Books/Sci Fi"))
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"1.5 MB", 1500000},
		{"2 KiB", 2048},
		{" 42 ", 42},
		{"-", 0},
		{"", 0},
		{"huge", 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseSize(tt.input))
		})
	}
}
