// Package debugdir serializes all file operations against one debug
// directory through a single background worker. Callers submit operations
// without blocking on I/O and receive a Future that resolves with the result.
// Because every mutation runs on the one worker, writer-writer races on the
// directory are impossible; an external reader racing with an append may
// still observe a torn intermediate state.
package debugdir

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tebeka/atexit"
)

// A Sink owns one debug directory and the worker goroutine that performs all
// file operations against it. Jobs run in submission order. Create a Sink
// with NewSink and release it with Close.
type Sink struct {
	dir string

	lock   sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool

	closeOnce sync.Once
	stopped   chan struct{}
}

// NewSink creates a Sink for the given directory. The directory itself is
// created lazily on the first operation that needs it. The sink registers an
// exit hook so queued jobs are drained even when the process terminates
// through atexit.
func NewSink(dir string) *Sink {
	if dir == "" {
		panic("debug directory must not be empty")
	}

	s := &Sink{
		dir:     dir,
		stopped: make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.lock)

	go s.worker()

	atexit.Register(s.Close)

	return s
}

// Dir returns the path of the debug directory.
func (s *Sink) Dir() string {
	return s.dir
}

// Close stops accepting new jobs, waits until every already-queued job has
// run, and stops the worker. Close is idempotent.
func (s *Sink) Close() {
	s.closeOnce.Do(func() {
		s.lock.Lock()
		s.closed = true
		s.cond.Broadcast()
		s.lock.Unlock()

		<-s.stopped
	})
}

func (s *Sink) worker() {
	defer close(s.stopped)

	for {
		job, ok := s.next()
		if !ok {
			return
		}

		job()
	}
}

// next blocks until a job is available or the sink is closed and drained.
func (s *Sink) next() (func(), bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	for len(s.queue) == 0 && !s.closed {
		s.cond.Wait()
	}

	if len(s.queue) == 0 {
		return nil, false
	}

	job := s.queue[0]
	s.queue = s.queue[1:]

	return job, true
}

// submit enqueues a job for the worker. It returns false when the sink is
// already closed. Submission never blocks on I/O; the queue is unbounded.
func (s *Sink) submit(job func()) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		return false
	}

	s.queue = append(s.queue, job)
	s.cond.Signal()

	return true
}

func resolveClosed[T any](f *Future[T]) {
	var zero T
	f.resolve(zero, ErrSinkClosed)
}

// resolveDir ensures the debug directory exists. MkdirAll tolerates the
// directory being created concurrently by another process.
func (s *Sink) resolveDir() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create debug directory: %w", err)
	}

	return nil
}

// FilePath resolves the full path of a file in the debug directory, creating
// the directory if needed. Unlike the asynchronous operations, FilePath runs
// on the calling goroutine.
func (s *Sink) FilePath(filename string) (string, error) {
	if err := s.resolveDir(); err != nil {
		return "", err
	}

	return filepath.Join(s.dir, filename), nil
}

// Write generates a fresh timestamped filename from the prefix, writes the
// content to it, and resolves the future with the created path.
func (s *Sink) Write(prefix, content string) *Future[string] {
	return s.WriteThen(prefix, content, nil)
}

// WriteThen behaves like Write and additionally runs onSuccess on the worker
// goroutine after a successful write, before the future resolves. Callers use
// it to couple state changes to the persistence of the written data.
func (s *Sink) WriteThen(
	prefix, content string,
	onSuccess func(path string),
) *Future[string] {
	f := newFuture[string]()

	ok := s.submit(func() {
		path, err := s.doWrite(prefix, content)
		if err == nil && onSuccess != nil {
			onSuccess(path)
		}
		f.resolve(path, err)
	})
	if !ok {
		resolveClosed(f)
	}

	return f
}

func (s *Sink) doWrite(prefix, content string) (string, error) {
	if err := s.resolveDir(); err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, GenerateFilename(prefix, "txt"))

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write debug file: %w", err)
	}

	return path, nil
}

// WriteLines joins the lines with newlines, appends a trailing newline, and
// writes them as one fresh debug file.
func (s *Sink) WriteLines(prefix string, lines []string) *Future[string] {
	return s.Write(prefix, strings.Join(lines, "\n")+"\n")
}

// Create creates a fresh, empty, timestamped debug file. It fails when the
// generated name already exists.
func (s *Sink) Create(prefix string) *Future[string] {
	f := newFuture[string]()

	ok := s.submit(func() {
		f.resolve(s.doCreate(prefix))
	})
	if !ok {
		resolveClosed(f)
	}

	return f
}

func (s *Sink) doCreate(prefix string) (string, error) {
	if err := s.resolveDir(); err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, GenerateFilename(prefix, "txt"))

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create debug file: %w", err)
	}

	if err := file.Close(); err != nil {
		return "", fmt.Errorf("failed to create debug file: %w", err)
	}

	return path, nil
}

// Append appends content to the named file, separated from the existing
// content by a newline. A missing file is created with the content. The name
// is exact, not a prefix. The append is a read-modify-write on the worker,
// so concurrent appends through the sink never interleave.
func (s *Sink) Append(filename, content string) *Future[string] {
	f := newFuture[string]()

	ok := s.submit(func() {
		f.resolve(s.doAppend(filename, content))
	})
	if !ok {
		resolveClosed(f)
	}

	return f
}

func (s *Sink) doAppend(filename, content string) (string, error) {
	if err := s.resolveDir(); err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, filename)

	existing, err := os.ReadFile(path)
	switch {
	case err == nil:
		content = string(existing) + "\n" + content
	case os.IsNotExist(err):
		// First append creates the file.
	default:
		return "", fmt.Errorf("failed to append to debug file: %w", err)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to append to debug file: %w", err)
	}

	return path, nil
}

// Read resolves with the full content of the named file, or with ErrNotFound
// when the file does not exist.
func (s *Sink) Read(filename string) *Future[string] {
	f := newFuture[string]()

	ok := s.submit(func() {
		f.resolve(s.doRead(filename))
	})
	if !ok {
		resolveClosed(f)
	}

	return f
}

func (s *Sink) doRead(filename string) (string, error) {
	if err := s.resolveDir(); err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, filename)

	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, filename)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read debug file: %w", err)
	}

	return string(content), nil
}

// Delete removes the named file. It resolves with true when a file was
// actually removed and with false when the file was already absent, which is
// not an error.
func (s *Sink) Delete(filename string) *Future[bool] {
	f := newFuture[bool]()

	ok := s.submit(func() {
		f.resolve(s.doDelete(filename))
	})
	if !ok {
		resolveClosed(f)
	}

	return f
}

func (s *Sink) doDelete(filename string) (bool, error) {
	if err := s.resolveDir(); err != nil {
		return false, err
	}

	path := filepath.Join(s.dir, filename)

	err := os.Remove(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete debug file: %w", err)
	}

	return true, nil
}

// List resolves with the names of the regular files currently in the debug
// directory. The order is unspecified.
func (s *Sink) List() *Future[[]string] {
	f := newFuture[[]string]()

	ok := s.submit(func() {
		f.resolve(s.doList())
	})
	if !ok {
		resolveClosed(f)
	}

	return f
}

func (s *Sink) doList() ([]string, error) {
	if err := s.resolveDir(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list debug files: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		names = append(names, entry.Name())
	}

	return names, nil
}
