package streaming

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"sync"
	"time"
)

// terminateWait bounds how long Terminate blocks waiting for a killed
// worker to actually exit.
const terminateWait = 5 * time.Second

// Spec describes one worker invocation.
type Spec struct {
	// Args is the full argument vector passed to the worker binary.
	Args []string
	// PipeOutput captures the worker's stdout as a byte pipe. Segmented
	// workers write files instead and leave this false.
	PipeOutput bool
}

// Process is an exclusive handle on a running transcoding worker.
type Process interface {
	// Output returns the worker's stdout pipe, or nil when the worker was
	// spawned without piped output.
	Output() io.ReadCloser
	// Exited is closed once the worker process has exited.
	Exited() <-chan struct{}
	// Terminate kills the worker and waits briefly for it to exit. It is
	// idempotent; terminating an exited worker is a no-op.
	Terminate()
}

// Spawner starts transcoding worker processes.
type Spawner interface {
	Spawn(spec Spec) (Process, error)
}

// FFmpegSpawner launches ffmpeg as the transcoding worker.
type FFmpegSpawner struct {
	// Path is the ffmpeg binary, defaulting to "ffmpeg" on PATH.
	Path string
	// ShowLog mirrors worker diagnostics to the host's stderr instead of
	// discarding them.
	ShowLog bool
}

func (s *FFmpegSpawner) Spawn(spec Spec) (Process, error) {
	path := s.Path
	if path == "" {
		path = "ffmpeg"
	}

	cmd := exec.Command(path, spec.Args...)
	if s.ShowLog {
		cmd.Stderr = os.Stderr
	}

	var stdout io.ReadCloser
	if spec.PipeOutput {
		pipe, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrWorkerSpawnFailed, err)
		}
		stdout = pipe
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWorkerSpawnFailed, err)
	}

	p := &workerProcess{
		cmd:    cmd,
		exited: make(chan struct{}),
	}
	var drained <-chan struct{}
	if stdout != nil {
		gate := newGatedPipe(stdout)
		p.stdout = gate
		drained = gate.drained
	}
	go p.monitor(drained)

	return p, nil
}

// monitor reaps the worker. Wait closes the stdout pipe's read end and drops
// any bytes still buffered in it, so for piped workers it must not run until
// the consumer has drained or released the pipe.
func (p *workerProcess) monitor(drained <-chan struct{}) {
	if drained != nil {
		<-drained
	}
	if err := p.cmd.Wait(); err != nil {
		log.Printf("[worker] ffmpeg pid %d exited: %v", p.cmd.Process.Pid, err)
	}
	close(p.exited)
}

// gatedPipe wraps a worker's stdout pipe and signals drained once the reader
// hits EOF or a read error, or closes the pipe.
type gatedPipe struct {
	io.ReadCloser
	drained chan struct{}
	once    sync.Once
}

func newGatedPipe(pipe io.ReadCloser) *gatedPipe {
	return &gatedPipe{ReadCloser: pipe, drained: make(chan struct{})}
}

func (g *gatedPipe) Read(buf []byte) (int, error) {
	n, err := g.ReadCloser.Read(buf)
	if err != nil {
		g.release()
	}
	return n, err
}

func (g *gatedPipe) Close() error {
	err := g.ReadCloser.Close()
	g.release()
	return err
}

func (g *gatedPipe) release() {
	g.once.Do(func() { close(g.drained) })
}

type workerProcess struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	exited chan struct{}
	kill   sync.Once
}

func (p *workerProcess) Output() io.ReadCloser { return p.stdout }

func (p *workerProcess) Exited() <-chan struct{} { return p.exited }

func (p *workerProcess) Terminate() {
	p.kill.Do(func() {
		select {
		case <-p.exited:
			return
		default:
		}
		if err := p.cmd.Process.Kill(); err != nil {
			log.Printf("[worker] kill pid %d: %v", p.cmd.Process.Pid, err)
		}
	})

	select {
	case <-p.exited:
	case <-time.After(terminateWait):
		log.Printf("[worker] pid %d did not exit within %v after kill", p.cmd.Process.Pid, terminateWait)
	}
}
