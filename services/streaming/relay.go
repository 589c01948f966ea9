package streaming

import (
	"io"
	"sync"

	"github.com/sourcegraph/conc"
)

// ChunkSize is the relay read size: seven whole 188-byte MPEG-TS packets, so
// chunks never split a packet across deliveries.
const ChunkSize = 188 * 7

// Relay reads a worker's output pipe in fixed-size chunks and forwards them,
// in order, to at most one consumer.
type Relay struct {
	cell  OutputCell
	queue *chunkQueue
	done  chan struct{}
	stop  sync.Once
	wg    *conc.WaitGroup
}

// StartRelay begins pumping the pipe into an unbounded FIFO. The returned
// relay's output is claimed through Take; Close releases the pump once the
// stream is finished with.
func StartRelay(pipe io.Reader) *Relay {
	r := &Relay{
		queue: newChunkQueue(),
		done:  make(chan struct{}),
		wg:    conc.NewWaitGroup(),
	}
	out := make(chan []byte)
	r.cell.ch = out

	r.wg.Go(func() {
		buf := make([]byte, ChunkSize)
		for {
			n, err := pipe.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				r.queue.push(chunk)
			}
			if err != nil {
				// Pipe closed or read failed: end of stream either way.
				r.queue.close()
				return
			}
		}
	})

	r.wg.Go(func() {
		defer close(out)
		for {
			chunk, ok := r.queue.pop()
			if !ok {
				return
			}
			select {
			case out <- chunk:
			case <-r.done:
				return
			}
		}
	})

	return r
}

// Take claims the relay's output channel. Only the first call succeeds; the
// channel is closed when the worker's pipe ends.
func (r *Relay) Take() (<-chan []byte, bool) {
	return r.cell.Take()
}

// Close releases the relay's goroutines. The owning worker must be
// terminated first so its pipe unblocks the reader.
func (r *Relay) Close() {
	r.stop.Do(func() {
		close(r.done)
		r.queue.close()
	})
	r.wg.Wait()
}

// OutputCell yields its channel to exactly one caller, ever. The swap is the
// ownership handoff for the stream's single valid consumption order.
type OutputCell struct {
	mu    sync.Mutex
	ch    <-chan []byte
	taken bool
}

// Take returns the channel on the first call and (nil, false) on every call
// after that, whether or not any bytes were read.
func (c *OutputCell) Take() (<-chan []byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.taken {
		return nil, false
	}
	c.taken = true
	ch := c.ch
	c.ch = nil
	return ch, true
}

// chunkQueue is an unbounded FIFO of byte chunks. Pushes never block, which
// keeps the pipe reader draining even with no consumer attached.
type chunkQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	chunks [][]byte
	closed bool
}

func newChunkQueue() *chunkQueue {
	q := &chunkQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *chunkQueue) push(chunk []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.chunks = append(q.chunks, chunk)
	q.cond.Signal()
}

// pop blocks until a chunk is available or the queue is closed and drained.
func (q *chunkQueue) pop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.chunks) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.chunks) == 0 {
		return nil, false
	}
	chunk := q.chunks[0]
	q.chunks = q.chunks[1:]
	return chunk, true
}

func (q *chunkQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
