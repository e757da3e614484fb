package hdfsclient

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/valier-io/hdfs-client/dfspath"
)

// ProgressListener receives byte-counting events for one file-level
// transfer. Implementations must be safe for concurrent use across the
// transfer manager's worker pool, since each worker invokes these
// callbacks independently for its own file.
type ProgressListener interface {
	Started(source, destination string)
	Bytes(source, destination string, count int64)
	Completed(source, destination string, totalBytes int64)
	Failed(source, destination string, err error)
}

// noopListener discards every event; used when a caller passes a nil
// ProgressListener so transfer workers never need a nil check.
type noopListener struct{}

func (noopListener) Started(string, string)         {}
func (noopListener) Bytes(string, string, int64)    {}
func (noopListener) Completed(string, string, int64) {}
func (noopListener) Failed(string, string, error)   {}

// TransferResult is the outcome of one file-level transfer.
type TransferResult struct {
	Source      string
	Destination string
	Success     bool
	Err         error
	Bytes       int64
	ElapsedMs   int64
}

// TransferHandle is returned by every bulk operation. Wait blocks until
// every dispatched file has finished; Results, TotalCount, SuccessCount,
// and FailureCount are only meaningful after Wait returns.
type TransferHandle struct {
	wg      sync.WaitGroup
	mu      sync.Mutex
	results []TransferResult
}

func newTransferHandle() *TransferHandle {
	return &TransferHandle{}
}

func (h *TransferHandle) record(r TransferResult) {
	h.mu.Lock()
	h.results = append(h.results, r)
	h.mu.Unlock()
}

// Wait blocks until every dispatched file-level transfer has completed.
func (h *TransferHandle) Wait() {
	h.wg.Wait()
}

// Results returns one TransferResult per dispatched file, in completion
// order (not dispatch order — workers finish files at different times).
func (h *TransferHandle) Results() []TransferResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]TransferResult, len(h.results))
	copy(out, h.results)
	return out
}

func (h *TransferHandle) TotalCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.results)
}

func (h *TransferHandle) SuccessCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, r := range h.results {
		if r.Success {
			n++
		}
	}
	return n
}

func (h *TransferHandle) FailureCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, r := range h.results {
		if !r.Success {
			n++
		}
	}
	return n
}

// TransferManager fans Client.CopyToSink/CopyFromSource operations across
// a fixed-size worker pool, per §4.9. Every dispatched file is an
// independent job; the only shared state across workers is the
// underlying Client, which is itself safe for concurrent use.
type TransferManager struct {
	client   *Client
	listener ProgressListener
	sem      chan struct{}
}

// NewTransferManager builds a manager bounded to c's configured
// Config.WorkerPoolSize concurrent file-level transfers (§4.9).
func (c *Client) NewTransferManager(listener ProgressListener) *TransferManager {
	return NewTransferManager(c, c.workerPoolSize, listener)
}

// NewTransferManager builds a manager bounded to workers concurrent
// file-level transfers. workers < 1 is treated as 1. A nil listener is
// replaced with a no-op implementation.
func NewTransferManager(client *Client, workers int, listener ProgressListener) *TransferManager {
	if workers < 1 {
		workers = 1
	}
	if listener == nil {
		listener = noopListener{}
	}
	return &TransferManager{
		client:   client,
		listener: listener,
		sem:      make(chan struct{}, workers),
	}
}

// Upload dispatches a single local-file-to-remote-path transfer.
func (m *TransferManager) Upload(localPath, remotePath string) *TransferHandle {
	h := newTransferHandle()
	m.dispatchUpload(h, localPath, remotePath)
	return h
}

// Download dispatches a single remote-path-to-local-file transfer.
func (m *TransferManager) Download(remotePath, localPath string) *TransferHandle {
	h := newTransferHandle()
	m.dispatchDownload(h, remotePath, localPath)
	return h
}

// UploadDirectory lists localDir one level deep (no recursion), filters
// to regular files, and dispatches one upload per file into remoteDir.
func (m *TransferManager) UploadDirectory(localDir, remoteDir string) (*TransferHandle, error) {
	h := newTransferHandle()
	names, err := regularFileNames(localDir)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		local := filepath.Join(localDir, name)
		remote, joinErr := dfspath.Join(remoteDir, name)
		if joinErr != nil {
			return nil, joinErr
		}
		m.dispatchUpload(h, local, remote)
	}
	return h, nil
}

// regularFileNames lists dir one level deep (no recursion) and returns the
// names of its regular-file entries, skipping subdirectories and anything
// else (symlinks, devices, sockets).
func regularFileNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// DownloadDirectory lists remoteDir one level deep (no recursion),
// filters to regular files, and dispatches one download per file into
// localDir.
func (m *TransferManager) DownloadDirectory(remoteDir, localDir string) (*TransferHandle, error) {
	h := newTransferHandle()
	entries, err := m.client.List(remoteDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return nil, err
	}
	for _, e := range entries {
		if !e.IsFile() {
			continue
		}
		remote, joinErr := dfspath.Join(remoteDir, e.Name)
		if joinErr != nil {
			return nil, joinErr
		}
		local := filepath.Join(localDir, e.Name)
		m.dispatchDownload(h, remote, local)
	}
	return h, nil
}

func (m *TransferManager) dispatchUpload(h *TransferHandle, localPath, remotePath string) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		m.sem <- struct{}{}
		defer func() { <-m.sem }()

		m.listener.Started(localPath, remotePath)
		start := time.Now()

		f, err := os.Open(localPath)
		if err != nil {
			m.listener.Failed(localPath, remotePath, err)
			h.record(TransferResult{Source: localPath, Destination: remotePath, Err: err})
			return
		}
		defer f.Close()

		counted := &countingReader{r: f, onRead: func(n int64) {
			m.listener.Bytes(localPath, remotePath, n)
		}}

		err = m.client.CopyFromSource(remotePath, counted)
		elapsed := time.Since(start).Milliseconds()
		if err != nil {
			m.listener.Failed(localPath, remotePath, err)
			h.record(TransferResult{Source: localPath, Destination: remotePath, Err: err, Bytes: counted.total, ElapsedMs: elapsed})
			return
		}
		m.listener.Completed(localPath, remotePath, counted.total)
		h.record(TransferResult{Source: localPath, Destination: remotePath, Success: true, Bytes: counted.total, ElapsedMs: elapsed})
	}()
}

func (m *TransferManager) dispatchDownload(h *TransferHandle, remotePath, localPath string) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		m.sem <- struct{}{}
		defer func() { <-m.sem }()

		m.listener.Started(remotePath, localPath)
		start := time.Now()

		if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
			m.listener.Failed(remotePath, localPath, err)
			h.record(TransferResult{Source: remotePath, Destination: localPath, Err: err})
			return
		}
		f, err := os.Create(localPath)
		if err != nil {
			m.listener.Failed(remotePath, localPath, err)
			h.record(TransferResult{Source: remotePath, Destination: localPath, Err: err})
			return
		}
		defer f.Close()

		counted := &countingWriter{w: f, onWrite: func(n int64) {
			m.listener.Bytes(remotePath, localPath, n)
		}}

		err = m.client.CopyToSink(remotePath, counted)
		elapsed := time.Since(start).Milliseconds()
		if err != nil {
			m.listener.Failed(remotePath, localPath, err)
			h.record(TransferResult{Source: remotePath, Destination: localPath, Err: err, Bytes: counted.total, ElapsedMs: elapsed})
			return
		}
		m.listener.Completed(remotePath, localPath, counted.total)
		h.record(TransferResult{Source: remotePath, Destination: localPath, Success: true, Bytes: counted.total, ElapsedMs: elapsed})
	}()
}

// countingReader wraps an io.Reader, invoking onRead with the cumulative
// byte count after every successful Read, mirroring a progress-tracking
// input stream.
type countingReader struct {
	r      io.Reader
	total  int64
	onRead func(total int64)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.total += int64(n)
		if c.onRead != nil {
			c.onRead(c.total)
		}
	}
	return n, err
}

// countingWriter wraps an io.Writer, invoking onWrite with the cumulative
// byte count after every successful Write.
type countingWriter struct {
	w       io.Writer
	total   int64
	onWrite func(total int64)
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	if n > 0 {
		c.total += int64(n)
		if c.onWrite != nil {
			c.onWrite(c.total)
		}
	}
	return n, err
}
