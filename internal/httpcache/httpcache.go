// Package httpcache keeps named caches of upstream HTTP responses, keyed by
// request identity, so the gateway can answer while the upstream is down.
package httpcache

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/TechinMama/RecipeForADisaster/internal/logger"
)

// Entry is a stored response.
type Entry struct {
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt time.Time
}

// Response rebuilds an *http.Response for req from the entry.
func (e *Entry) Response(req *http.Request) *http.Response {
	h := e.Header.Clone()
	if h == nil {
		h = make(http.Header)
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status)),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

// Key identifies a request. Only GET responses are stored, so other methods
// never match.
func Key(req *http.Request) string {
	return req.Method + " " + req.URL.String()
}

// Storage is a set of named caches.
type Storage struct {
	mu     sync.RWMutex
	caches map[string]*cache.Cache
	order  []string
	dir    string
	log    logger.Logger
}

// New creates an empty storage. dir is where Save and Load keep snapshots;
// an empty dir disables them.
func New(dir string, log logger.Logger) *Storage {
	if log == nil {
		log = logger.Discard()
	}
	return &Storage{
		caches: make(map[string]*cache.Cache),
		dir:    dir,
		log:    log.Module("httpcache"),
	}
}

// Open returns the named cache, creating it when missing.
func (s *Storage) Open(name string) *cache.Cache {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openLocked(name)
}

func (s *Storage) openLocked(name string) *cache.Cache {
	if c, ok := s.caches[name]; ok {
		return c
	}
	c := cache.New(cache.NoExpiration, 0)
	s.caches[name] = c
	s.order = append(s.order, name)
	return c
}

// Put stores resp under req in the named cache. resp.Body is read fully and
// replaced so the caller can still deliver it.
func (s *Storage) Put(name string, req *http.Request, resp *http.Response) error {
	if req.Method != http.MethodGet {
		return fmt.Errorf("only GET responses are cached, got %s", req.Method)
	}
	var body []byte
	if resp.Body != nil {
		var err error
		body, err = io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}
	}
	s.PutEntry(name, Key(req), &Entry{
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		StoredAt: time.Now(),
	})
	return nil
}

// PutEntry stores a prepared entry.
func (s *Storage) PutEntry(name, key string, e *Entry) {
	s.Open(name).Set(key, e, cache.NoExpiration)
}

// Match looks req up across caches in creation order.
func (s *Storage) Match(req *http.Request) (*Entry, bool) {
	if req.Method != http.MethodGet {
		return nil, false
	}
	key := Key(req)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, name := range s.order {
		if v, ok := s.caches[name].Get(key); ok {
			return v.(*Entry), true
		}
	}
	return nil, false
}

// MatchIn looks req up in one named cache.
func (s *Storage) MatchIn(name string, req *http.Request) (*Entry, bool) {
	s.mu.RLock()
	c, ok := s.caches[name]
	s.mu.RUnlock()
	if !ok || req.Method != http.MethodGet {
		return nil, false
	}
	v, found := c.Get(Key(req))
	if !found {
		return nil, false
	}
	return v.(*Entry), true
}

// Keys lists cache names, sorted.
func (s *Storage) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := slices.Clone(s.order)
	sort.Strings(names)
	return names
}

// Len is the number of entries in the named cache.
func (s *Storage) Len(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.caches[name]; ok {
		return c.ItemCount()
	}
	return 0
}

// Delete removes a named cache and its snapshot.
func (s *Storage) Delete(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(name)
}

func (s *Storage) deleteLocked(name string) bool {
	c, ok := s.caches[name]
	if !ok {
		return false
	}
	c.Flush()
	delete(s.caches, name)
	s.order = slices.DeleteFunc(s.order, func(n string) bool { return n == name })
	if s.dir != "" {
		_ = os.Remove(s.snapshotPath(name))
	}
	return true
}

// Prune deletes every cache not named in keep and returns the removed names.
func (s *Storage) Prune(keep ...string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []string
	for _, name := range slices.Clone(s.order) {
		if slices.Contains(keep, name) {
			continue
		}
		s.deleteLocked(name)
		removed = append(removed, name)
	}
	for _, name := range removed {
		s.log.Info("deleted stale cache", logger.String("cache", name))
	}
	return removed
}

func (s *Storage) snapshotPath(name string) string {
	return filepath.Join(s.dir, name+".gob")
}

// Save writes one gob snapshot per cache.
func (s *Storage) Save() error {
	if s.dir == "" {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, name := range s.order {
		items := s.caches[name].Items()
		snapshot := make(map[string]*Entry, len(items))
		for k, item := range items {
			snapshot[k] = item.Object.(*Entry)
		}
		if err := writeSnapshot(s.snapshotPath(name), snapshot); err != nil {
			return fmt.Errorf("failed to save cache %s: %w", name, err)
		}
	}
	return nil
}

func writeSnapshot(path string, snapshot map[string]*Entry) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(f).Encode(snapshot); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// Load restores every snapshot found in the cache dir. Unreadable snapshots
// are logged and skipped.
func (s *Storage) Load() error {
	if s.dir == "" {
		return nil
	}
	paths, err := filepath.Glob(filepath.Join(s.dir, "*.gob"))
	if err != nil {
		return fmt.Errorf("failed to list cache snapshots: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, path := range paths {
		name := filepath.Base(path[:len(path)-len(".gob")])
		snapshot, err := readSnapshot(path)
		if err != nil {
			s.log.Warn("skipping unreadable cache snapshot",
				logger.String("path", path), logger.Error(err))
			continue
		}
		c := s.openLocked(name)
		for k, e := range snapshot {
			c.Set(k, e, cache.NoExpiration)
		}
		s.log.Debug("cache snapshot loaded",
			logger.String("cache", name), logger.Int("entries", len(snapshot)))
	}
	return nil
}

func readSnapshot(path string) (map[string]*Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	var snapshot map[string]*Entry
	if err := gob.NewDecoder(f).Decode(&snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// SnapshotSize returns the total size in bytes of snapshot files on disk.
func (s *Storage) SnapshotSize() int64 {
	if s.dir == "" {
		return 0
	}
	paths, _ := filepath.Glob(filepath.Join(s.dir, "*.gob"))
	var total int64
	for _, p := range paths {
		if fi, err := os.Stat(p); err == nil {
			total += fi.Size()
		}
	}
	return total
}

