package streaming

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"rtspgate/models"
)

// stream is one registry entry. While pending, the worker is still being
// spawned outside the registry lock and the entry only reserves the id.
type stream struct {
	id        string
	source    string
	createdAt time.Time
	pending   bool
	proc      Process
	relay     *Relay
}

// Registry tracks managed streams by caller-chosen id and enforces one live
// worker per id.
type Registry struct {
	mu      sync.RWMutex
	streams map[string]*stream
	spawner Spawner
	wg      *conc.WaitGroup
}

func NewRegistry(spawner Spawner) *Registry {
	return &Registry{
		streams: make(map[string]*stream),
		spawner: spawner,
		wg:      conc.NewWaitGroup(),
	}
}

// Start spawns a worker and relay for id. The id is reserved under the lock
// before the spawn runs, so concurrent starts for the same id produce exactly
// one worker; the loser gets ErrDuplicateStreamID without ever spawning.
func (r *Registry) Start(id, source string) error {
	s := &stream{
		id:        id,
		source:    source,
		createdAt: time.Now().UTC(),
		pending:   true,
	}

	r.mu.Lock()
	if _, exists := r.streams[id]; exists {
		r.mu.Unlock()
		return ErrDuplicateStreamID
	}
	r.streams[id] = s
	r.mu.Unlock()

	proc, err := r.spawner.Spawn(Spec{Args: ManagedStreamArgs(source), PipeOutput: true})
	if err != nil {
		r.mu.Lock()
		delete(r.streams, id)
		r.mu.Unlock()
		log.Printf("[registry] start %q failed: %v", id, err)
		return err
	}
	relay := StartRelay(proc.Output())

	r.mu.Lock()
	if cur, ok := r.streams[id]; !ok || cur != s {
		// Stopped while the spawn was in flight.
		r.mu.Unlock()
		proc.Terminate()
		relay.Close()
		return ErrStreamNotFound
	}
	s.proc = proc
	s.relay = relay
	s.pending = false
	r.mu.Unlock()

	r.wg.Go(func() { r.watch(s) })

	log.Printf("[registry] stream %q started from %s", id, source)
	return nil
}

// watch removes the entry when the worker exits on its own, so an id only
// exists while its worker is alive.
func (r *Registry) watch(s *stream) {
	<-s.proc.Exited()

	r.mu.Lock()
	cur, ok := r.streams[s.id]
	if ok && cur == s {
		delete(r.streams, s.id)
	}
	r.mu.Unlock()

	s.relay.Close()
	if ok && cur == s {
		log.Printf("[registry] worker for stream %q exited; entry removed", s.id)
	}
}

// Stop terminates the stream's worker and removes the entry. Removal happens
// first, under the lock, so a start for the same id immediately after never
// observes a half-removed entry.
func (r *Registry) Stop(id string) error {
	r.mu.Lock()
	s, ok := r.streams[id]
	if !ok {
		r.mu.Unlock()
		return ErrStreamNotFound
	}
	delete(r.streams, id)
	r.mu.Unlock()

	if s.proc != nil {
		s.proc.Terminate()
	}
	if s.relay != nil {
		s.relay.Close()
	}
	log.Printf("[registry] stream %q stopped", id)
	return nil
}

// Lookup returns the stream's descriptor without touching its output.
func (r *Registry) Lookup(id string) (models.StreamInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.streams[id]
	if !ok || s.pending {
		return models.StreamInfo{}, ErrStreamNotFound
	}
	return models.StreamInfo{ID: s.id, Source: s.source, CreatedAt: s.createdAt}, nil
}

// List returns a point-in-time snapshot of active streams.
func (r *Registry) List() []models.StreamInfo {
	r.mu.RLock()
	infos := make([]models.StreamInfo, 0, len(r.streams))
	for _, s := range r.streams {
		if s.pending {
			continue
		}
		infos = append(infos, models.StreamInfo{ID: s.id, Source: s.source, CreatedAt: s.createdAt})
	}
	r.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Output performs the take-once handoff of the stream's byte channel. The
// first caller gets the receiver; everyone after gets ErrAlreadyConsumed
// until the id is restarted.
func (r *Registry) Output(id string) (<-chan []byte, error) {
	r.mu.RLock()
	s, ok := r.streams[id]
	if !ok || s.pending {
		r.mu.RUnlock()
		return nil, ErrStreamNotFound
	}
	relay := s.relay
	r.mu.RUnlock()

	ch, ok := relay.Take()
	if !ok {
		return nil, ErrAlreadyConsumed
	}
	return ch, nil
}

// Shutdown stops every stream and waits for the watchers to finish.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	remaining := make([]*stream, 0, len(r.streams))
	for id, s := range r.streams {
		remaining = append(remaining, s)
		delete(r.streams, id)
	}
	r.mu.Unlock()

	for _, s := range remaining {
		if s.proc != nil {
			s.proc.Terminate()
		}
		if s.relay != nil {
			s.relay.Close()
		}
	}
	r.wg.Wait()
	if len(remaining) > 0 {
		log.Printf("[registry] shut down %d stream(s)", len(remaining))
	}
}
