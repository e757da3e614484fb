package hdfsclient

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTransferManagerClampsWorkersToOne(t *testing.T) {
	m := NewTransferManager(nil, 0, nil)
	assert.Equal(t, 1, cap(m.sem))
	m2 := NewTransferManager(nil, -5, nil)
	assert.Equal(t, 1, cap(m2.sem))
	m3 := NewTransferManager(nil, 4, nil)
	assert.Equal(t, 4, cap(m3.sem))
}

func TestNewTransferManagerDefaultsNilListenerToNoop(t *testing.T) {
	m := NewTransferManager(nil, 1, nil)
	assert.NotNil(t, m.listener)
	// Must not panic when invoked.
	m.listener.Started("a", "b")
	m.listener.Bytes("a", "b", 1)
	m.listener.Completed("a", "b", 1)
	m.listener.Failed("a", "b", nil)
}

type recordingListener struct {
	mu      sync.Mutex
	started []string
	failed  []string
}

func (l *recordingListener) Started(source, destination string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started = append(l.started, source)
}
func (l *recordingListener) Bytes(string, string, int64) {}
func (l *recordingListener) Completed(string, string, int64) {}
func (l *recordingListener) Failed(source, destination string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failed = append(l.failed, source)
}

func TestUploadMissingLocalFileRecordsFailureWithoutTouchingCoordinator(t *testing.T) {
	listener := &recordingListener{}
	m := NewTransferManager(nil, 2, listener)

	h := m.Upload(filepath.Join(t.TempDir(), "does-not-exist.txt"), "/remote/dest.txt")
	h.Wait()

	require.Equal(t, 1, h.TotalCount())
	assert.Equal(t, 0, h.SuccessCount())
	assert.Equal(t, 1, h.FailureCount())

	results := h.Results()
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Error(t, results[0].Err)

	listener.mu.Lock()
	defer listener.mu.Unlock()
	assert.Len(t, listener.started, 1)
	assert.Len(t, listener.failed, 1)
}

func TestRegularFileNamesSkipsSubdirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("b"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	names, err := regularFileNames(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.txt", "b.txt"}, names)
}

func TestUploadDirectoryOnEmptyDirProducesNoResults(t *testing.T) {
	dir := t.TempDir()
	m := NewTransferManager(nil, 1, nil)
	h, err := m.UploadDirectory(dir, "/remote")
	require.NoError(t, err)
	h.Wait()
	assert.Equal(t, 0, h.TotalCount())
}

func TestCountingReaderReportsCumulativeBytes(t *testing.T) {
	var seen []int64
	src := bytes.NewReader([]byte("hello world"))
	cr := &countingReader{r: src, onRead: func(total int64) {
		seen = append(seen, total)
	}}

	buf := make([]byte, 4)
	var total int64
	for {
		n, err := cr.Read(buf)
		total += int64(n)
		if err != nil {
			break
		}
	}
	assert.Equal(t, int64(11), total)
	assert.Equal(t, int64(11), cr.total)
	require.NotEmpty(t, seen)
	assert.Equal(t, int64(11), seen[len(seen)-1])
}

func TestCountingWriterReportsCumulativeBytes(t *testing.T) {
	var seen []int64
	var dst bytes.Buffer
	cw := &countingWriter{w: &dst, onWrite: func(total int64) {
		seen = append(seen, total)
	}}

	n, err := cw.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n2, err := cw.Write([]byte("de"))
	require.NoError(t, err)
	assert.Equal(t, 2, n2)

	assert.Equal(t, int64(5), cw.total)
	assert.Equal(t, []int64{3, 5}, seen)
	assert.Equal(t, "abcde", dst.String())
}

func TestTransferHandleCountsMixedOutcomes(t *testing.T) {
	h := newTransferHandle()
	h.record(TransferResult{Source: "a", Success: true, Bytes: 10})
	h.record(TransferResult{Source: "b", Success: false, Err: assert.AnError})
	h.record(TransferResult{Source: "c", Success: true, Bytes: 20})

	assert.Equal(t, 3, h.TotalCount())
	assert.Equal(t, 2, h.SuccessCount())
	assert.Equal(t, 1, h.FailureCount())
	assert.Len(t, h.Results(), 3)
}
