package importer

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/unkn0wn-root/restitch/internal/errdef"
	"github.com/unkn0wn-root/restitch/internal/workbook"
)

// SnapshotCache memoizes parsed workbook snapshots by path with TTL
// semantics. It is explicit state passed into the orchestrator, so two
// concurrent imports with separate caches never share anything.
type SnapshotCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

type cacheEntry struct {
	workbook *workbook.Workbook
	modTime  time.Time
	loadedAt time.Time
}

func NewSnapshotCache(ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{ttl: ttl, now: time.Now, entries: map[string]cacheEntry{}}
}

// Load parses the snapshot at path, reusing a cached parse while it is
// fresh and the file's mtime is unchanged. A nil cache always reads.
func (c *SnapshotCache) Load(path string) (*workbook.Workbook, error) {
	if c == nil {
		return readSnapshot(path)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	info, err := os.Stat(path)
	if err != nil {
		delete(c.entries, path)
		return nil, err
	}

	if entry, ok := c.entries[path]; ok {
		fresh := c.ttl <= 0 || c.now().Sub(entry.loadedAt) < c.ttl
		if fresh && entry.modTime.Equal(info.ModTime()) {
			return entry.workbook, nil
		}
	}

	wb, err := readSnapshot(path)
	if err != nil {
		return nil, err
	}
	c.entries[path] = cacheEntry{workbook: wb, modTime: info.ModTime(), loadedAt: c.now()}
	return wb, nil
}

func readSnapshot(path string) (*workbook.Workbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	wb := &workbook.Workbook{}
	if err := json.Unmarshal(data, wb); err != nil {
		return nil, errdef.Wrap(errdef.CodeSnapshot, err, "parse snapshot %s", path)
	}
	return wb, nil
}
