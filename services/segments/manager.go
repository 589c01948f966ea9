package segments

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/sourcegraph/conc"
	"github.com/spf13/afero"

	"rtspgate/models"
	"rtspgate/services/streaming"
)

var (
	// ErrSessionNotFound is returned for unknown or evicted session ids.
	ErrSessionNotFound = errors.New("segment session not found")

	// ErrFileNotFound is returned when a session exists but the requested
	// file does not.
	ErrFileNotFound = errors.New("segment file not found")

	// ErrInvalidFileName rejects path traversal in requested file names.
	ErrInvalidFileName = errors.New("invalid segment file name")

	// ErrUpstreamUnavailable is returned when a session's worker never
	// produced a playlist within the readiness window.
	ErrUpstreamUnavailable = errors.New("upstream produced no playlist")
)

const playlistName = "playlist.m3u8"

type sessionState int

const (
	stateSpawning sessionState = iota
	stateReady
	stateEvicted
)

type session struct {
	id         string
	source     string // redacted, for observability
	dir        string
	createdAt  time.Time
	lastAccess time.Time
	state      sessionState
	proc       streaming.Process
}

// Config tunes the cache. Zero fields fall back to production defaults.
type Config struct {
	BaseDir      string
	IdleTimeout  time.Duration
	ReapInterval time.Duration
	ReadyTimeout time.Duration
	PollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseDir == "" {
		c.BaseDir = filepath.Join("/tmp", "rtspgate-segments")
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = 10 * time.Second
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = 20 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 250 * time.Millisecond
	}
	return c
}

// Manager is the keyed cache of on-demand segmented-output sessions. Sessions
// are created lazily per normalized source, refreshed on every read, and
// reaped once idle longer than the configured threshold.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*session
	seq      uint64

	fs      afero.Fs
	spawner streaming.Spawner
	cfg     Config

	done chan struct{}
	stop sync.Once
	wg   *conc.WaitGroup
}

func NewManager(fs afero.Fs, spawner streaming.Spawner, cfg Config) *Manager {
	m := &Manager{
		sessions: make(map[string]*session),
		fs:       fs,
		spawner:  spawner,
		cfg:      cfg.withDefaults(),
		done:     make(chan struct{}),
		wg:       conc.NewWaitGroup(),
	}

	if err := m.fs.MkdirAll(m.cfg.BaseDir, 0o755); err != nil {
		log.Printf("[segments] failed to create base directory %q: %v", m.cfg.BaseDir, err)
	}
	m.removeOrphanedDirs()

	m.wg.Go(m.reapLoop)
	return m
}

// removeOrphanedDirs clears session directories left behind by a previous
// run. Registry state is in-memory only, so anything on disk is stale.
func (m *Manager) removeOrphanedDirs() {
	entries, err := afero.ReadDir(m.fs, m.cfg.BaseDir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		stale := filepath.Join(m.cfg.BaseDir, entry.Name())
		if err := m.fs.RemoveAll(stale); err != nil {
			log.Printf("[segments] failed to remove orphaned dir %q: %v", stale, err)
		}
	}
	if len(entries) > 0 {
		log.Printf("[segments] removed %d orphaned session dir(s)", len(entries))
	}
}

// SessionID derives the deterministic session id for a normalized source, so
// identical requests coalesce onto the same session.
func SessionID(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])[:16]
}

// redact strips userinfo from a source URL for logs and listings.
func redact(source string) string {
	if at := strings.LastIndex(source, "@"); at >= 0 {
		if scheme := strings.Index(source, "://"); scheme >= 0 && scheme+3 < at {
			return source[:scheme+3] + source[at+1:]
		}
	}
	return source
}

// GetOrCreate returns the live session for source, creating one when none
// exists. urlPrefix is the HTTP path under which the session's files are
// served; the worker embeds it in playlist entries. The id is reserved in the
// map under the lock while the directory creation and spawn run outside it,
// so two concurrent identical requests start exactly one worker.
func (m *Manager) GetOrCreate(source, urlPrefix string) (string, error) {
	id := SessionID(source)
	now := time.Now()

	m.mu.Lock()
	if s, ok := m.sessions[id]; ok {
		s.lastAccess = now
		m.mu.Unlock()
		return id, nil
	}
	m.seq++
	s := &session{
		id:         id,
		source:     redact(source),
		dir:        filepath.Join(m.cfg.BaseDir, fmt.Sprintf("%s-%d", id, m.seq)),
		createdAt:  now,
		lastAccess: now,
		state:      stateSpawning,
	}
	m.sessions[id] = s
	m.mu.Unlock()

	if err := m.fs.MkdirAll(s.dir, 0o755); err != nil {
		m.rollback(s)
		return "", fmt.Errorf("%w: create session dir: %v", streaming.ErrWorkerSpawnFailed, err)
	}

	baseURL := path.Join(urlPrefix, id) + "/"
	proc, err := m.spawner.Spawn(streaming.Spec{Args: streaming.SegmentArgs(source, s.dir, baseURL)})
	if err != nil {
		m.rollback(s)
		return "", err
	}

	m.mu.Lock()
	if cur, ok := m.sessions[id]; !ok || cur != s {
		// Evicted or shut down while spawning.
		m.mu.Unlock()
		proc.Terminate()
		_ = m.fs.RemoveAll(s.dir)
		return "", ErrSessionNotFound
	}
	s.proc = proc
	m.mu.Unlock()

	m.wg.Go(func() { m.watch(s) })

	log.Printf("[segments] session %s created for %s", id, s.source)
	return id, nil
}

func (m *Manager) rollback(s *session) {
	m.mu.Lock()
	if cur, ok := m.sessions[s.id]; ok && cur == s {
		delete(m.sessions, s.id)
	}
	m.mu.Unlock()
	_ = m.fs.RemoveAll(s.dir)
}

// watch cleans up when a session's worker exits on its own.
func (m *Manager) watch(s *session) {
	<-s.proc.Exited()

	m.mu.Lock()
	cur, ok := m.sessions[s.id]
	if !ok || cur != s {
		m.mu.Unlock()
		return
	}
	s.state = stateEvicted
	delete(m.sessions, s.id)
	m.mu.Unlock()

	if err := m.fs.RemoveAll(s.dir); err != nil {
		log.Printf("[segments] failed to remove dir for session %s: %v", s.id, err)
	}
	log.Printf("[segments] worker for session %s exited; session removed", s.id)
}

// AwaitReady polls for the session's playlist until it exists and is
// non-empty. On timeout the session is torn down and ErrUpstreamUnavailable
// returned: a session that never became ready is a failure, not a leak.
// A non-positive timeout uses the configured default.
func (m *Manager) AwaitReady(id string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = m.cfg.ReadyTimeout
	}

	m.mu.RLock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.RUnlock()
		return ErrSessionNotFound
	}
	playlist := filepath.Join(s.dir, playlistName)
	m.mu.RUnlock()

	attempts := uint(timeout / m.cfg.PollInterval)
	if attempts == 0 {
		attempts = 1
	}
	err := retry.Do(
		func() error {
			info, err := m.fs.Stat(playlist)
			if err != nil {
				return err
			}
			if info.Size() == 0 {
				return errors.New("playlist still empty")
			}
			return nil
		},
		retry.Attempts(attempts),
		retry.Delay(m.cfg.PollInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		m.evict(s, "never became ready")
		return fmt.Errorf("%w: %s", ErrUpstreamUnavailable, playlist)
	}

	m.mu.Lock()
	if cur, ok := m.sessions[id]; ok && cur == s {
		if s.state == stateSpawning {
			s.state = stateReady
		}
		s.lastAccess = time.Now()
	}
	m.mu.Unlock()
	return nil
}

// ReadFile returns a session file's bytes and refreshes the session's
// last-access time. The read either completes against a live session or
// fails as not-found; it never observes a session still in the map with a
// reclaimed directory, because eviction removes the entry first.
func (m *Manager) ReadFile(id, name string) ([]byte, error) {
	if name == "" || strings.Contains(name, "..") || strings.ContainsAny(name, "/\\") {
		return nil, ErrInvalidFileName
	}

	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok || s.state == stateEvicted {
		m.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	s.lastAccess = time.Now()
	dir := s.dir
	m.mu.Unlock()

	data, err := afero.ReadFile(m.fs, filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	return data, nil
}

// Sessions returns an observability snapshot ordered most recently used
// first.
func (m *Manager) Sessions() []models.SegmentSession {
	now := time.Now()

	m.mu.RLock()
	out := make([]models.SegmentSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, models.SegmentSession{
			ID:          s.id,
			Source:      s.source,
			CreatedAt:   s.createdAt,
			IdleSeconds: int64(now.Sub(s.lastAccess) / time.Second),
		})
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].IdleSeconds < out[j].IdleSeconds })
	return out
}

func (m *Manager) reapLoop() {
	ticker := time.NewTicker(m.cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.done:
			return
		}
	}
}

// sweep evicts every session idle past the threshold. Victims are marked and
// removed from the map in one locked pass, so a session can never be evicted
// by two sweeps; the worker kill and directory removal happen outside the
// lock.
func (m *Manager) sweep() {
	now := time.Now()

	m.mu.Lock()
	var victims []*session
	for id, s := range m.sessions {
		if now.Sub(s.lastAccess) > m.cfg.IdleTimeout {
			s.state = stateEvicted
			delete(m.sessions, id)
			victims = append(victims, s)
		}
	}
	m.mu.Unlock()

	for _, s := range victims {
		m.teardown(s)
		log.Printf("[segments] evicted session %s after %v idle", s.id, now.Sub(s.lastAccess).Round(time.Second))
	}
}

// evict removes a single session immediately.
func (m *Manager) evict(s *session, reason string) {
	m.mu.Lock()
	cur, ok := m.sessions[s.id]
	if !ok || cur != s {
		m.mu.Unlock()
		return
	}
	s.state = stateEvicted
	delete(m.sessions, s.id)
	m.mu.Unlock()

	m.teardown(s)
	log.Printf("[segments] session %s torn down: %s", s.id, reason)
}

func (m *Manager) teardown(s *session) {
	if s.proc != nil {
		s.proc.Terminate()
	}
	if err := m.fs.RemoveAll(s.dir); err != nil {
		log.Printf("[segments] failed to remove dir for session %s: %v", s.id, err)
	}
}

// Shutdown stops the reaper, evicts every session, and waits for background
// goroutines to finish.
func (m *Manager) Shutdown() {
	m.stop.Do(func() { close(m.done) })

	m.mu.Lock()
	remaining := make([]*session, 0, len(m.sessions))
	for id, s := range m.sessions {
		s.state = stateEvicted
		remaining = append(remaining, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range remaining {
		m.teardown(s)
	}
	m.wg.Wait()
	if len(remaining) > 0 {
		log.Printf("[segments] shut down %d session(s)", len(remaining))
	}
}
