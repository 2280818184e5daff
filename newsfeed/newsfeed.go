package newsfeed

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// snapshotFile is the single file holding the most recent item set.
const snapshotFile = "feed.json"

// ErrNoSnapshot is returned when nothing has been stored yet.
var ErrNoSnapshot = errors.New("no snapshot stored")

// NewsFeed stores the last delivered set of news items in a directory. Each
// Replace swaps the whole set; there is no per-item mutation or merge.
type NewsFeed struct {
	storageDir string
}

// Snapshot is the on-disk representation of a stored item set.
type Snapshot struct {
	LoadedAt time.Time  `json:"loaded_at"`
	URL      string     `json:"url"`
	Items    []NewsItem `json:"items"`
}

// NewNewsFeed creates a new news feed with the specified storage directory
func NewNewsFeed(storageDir string) (*NewsFeed, error) {
	// Create the storage directory if it doesn't exist (0700: owner-only access)
	if err := os.MkdirAll(storageDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &NewsFeed{
		storageDir: storageDir,
	}, nil
}

// Replace clears the stored set and stores items in their given order. The
// write goes to a temporary file that is renamed into place, so readers see
// either the old set or the new one.
func (nf *NewsFeed) Replace(url string, items []NewsItem) error {
	if items == nil {
		items = []NewsItem{}
	}

	snapshot := Snapshot{
		LoadedAt: time.Now().UTC(),
		URL:      url,
		Items:    items,
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(nf.storageDir, snapshotFile+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	// 0600: owner-only read/write
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set snapshot permissions: %w", err)
	}

	if err := os.Rename(tmpName, filepath.Join(nf.storageDir, snapshotFile)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}

	return nil
}

// Load returns the stored snapshot, or ErrNoSnapshot if nothing has been
// stored yet.
func (nf *NewsFeed) Load() (*Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(nf.storageDir, snapshotFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return &snapshot, nil
}

// List returns the stored items in order. An empty feed (nothing stored yet)
// returns an empty slice.
func (nf *NewsFeed) List() ([]NewsItem, error) {
	snapshot, err := nf.Load()
	if errors.Is(err, ErrNoSnapshot) {
		return []NewsItem{}, nil
	}
	if err != nil {
		return nil, err
	}

	return snapshot.Items, nil
}

// Get retrieves the item at the given position. Returns nil (not an error)
// when the position is out of range.
func (nf *NewsFeed) Get(index int) (*NewsItem, error) {
	items, err := nf.List()
	if err != nil {
		return nil, err
	}

	if index < 0 || index >= len(items) {
		return nil, nil // Item not found (not an error)
	}

	item := items[index]
	return &item, nil
}
