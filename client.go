package hdfsclient

import (
	"crypto/rand"
	"io"

	"github.com/valier-io/hdfs-client/dfserr"
	"github.com/valier-io/hdfs-client/dfspath"
	"github.com/valier-io/hdfs-client/internal/coordinator"
	"github.com/valier-io/hdfs-client/internal/datanode"
)

func newClientID() []byte {
	id := make([]byte, 16)
	// A read failure here would mean the system's CSPRNG is broken, a
	// condition this client has no sane fallback for.
	if _, err := rand.Read(id); err != nil {
		panic(err)
	}
	return id
}

// Client stitches the coordinator metadata client (C5) and storage-node
// block client (C7) into the file-system-like surface described in §4.8.
// It holds a coordinator client and a storage-node connection factory by
// value, both leaves — no cyclic references.
type Client struct {
	coord            *coordinator.Client
	clientName       string
	datanodeOpts     datanode.ConnectOptions
	defaultBlockSize uint64
	defaultReplicas  uint32
	localMode        bool
	workerPoolSize   int
}

// NewClient builds a Client from cfg, parsing and validating every
// configured coordinator endpoint up front.
func NewClient(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()

	if len(cfg.CoordinatorEndpoints) == 0 {
		return nil, dfserr.InvalidArgument("no coordinator endpoints configured")
	}
	endpoints := make([]coordinator.Endpoint, 0, len(cfg.CoordinatorEndpoints))
	for _, uri := range cfg.CoordinatorEndpoints {
		ep, err := coordinator.ParseEndpoint(uri)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, ep)
	}

	return &Client{
		coord:            coordinator.NewClient(endpoints, cfg.coordinatorConnectOptions()),
		clientName:       cfg.ClientName,
		datanodeOpts:     cfg.datanodeConnectOptions(),
		defaultBlockSize: cfg.BlockSize.Bytes(),
		defaultReplicas:  cfg.ReplicationFactor,
		localMode:        cfg.LocalMode,
		workerPoolSize:   cfg.WorkerPoolSize,
	}, nil
}

// GetServerInfo fetches the coordinator's build/version info and capability
// bitmask, per the supplemented HdfsServerInfo accessor.
func (c *Client) GetServerInfo() (ServerInfo, error) {
	info, err := c.coord.GetVersion()
	if err != nil {
		return ServerInfo{}, err
	}
	return convertServerInfo(info), nil
}

// List returns the first page of directory entries under path.
func (c *Client) List(path string) ([]FileSummary, error) {
	if err := dfspath.RequireAbsolute(path); err != nil {
		return nil, err
	}
	entries, err := c.coord.List(dfspath.Normalize(path))
	if err != nil {
		return nil, err
	}
	out := make([]FileSummary, 0, len(entries))
	for _, e := range entries {
		out = append(out, convertFileStatus(e))
	}
	return out, nil
}

// CreateDirectory creates a single directory; it fails if the parent does
// not already exist.
func (c *Client) CreateDirectory(path string) (FileSummary, error) {
	return c.mkdir(path, false)
}

// CreateDirectories creates path and any missing parent directories.
func (c *Client) CreateDirectories(path string) (FileSummary, error) {
	return c.mkdir(path, true)
}

func (c *Client) mkdir(path string, createParents bool) (FileSummary, error) {
	if err := dfspath.RequireAbsolute(path); err != nil {
		return FileSummary{}, err
	}
	fs, err := c.coord.Mkdir(dfspath.Normalize(path), createParents)
	if err != nil {
		return FileSummary{}, err
	}
	return convertFileStatus(*fs), nil
}

// ReadAttributes returns path's metadata, raising NotFound if it is absent.
func (c *Client) ReadAttributes(path string) (FileSummary, error) {
	if err := dfspath.RequireAbsolute(path); err != nil {
		return FileSummary{}, err
	}
	fs, err := c.coord.Stat(dfspath.Normalize(path))
	if err != nil {
		return FileSummary{}, err
	}
	if fs == nil {
		return FileSummary{}, dfserr.NotFound(path)
	}
	return convertFileStatus(*fs), nil
}

// ReadAllBytes reads the whole contents of path, pre-sizing the buffer from
// the file's reported length when representable.
func (c *Client) ReadAllBytes(path string) ([]byte, error) {
	attrs, err := c.ReadAttributes(path)
	if err != nil {
		return nil, err
	}
	if attrs.IsDirectory() {
		return nil, dfserr.InvalidArgument("%s is a directory", path)
	}
	buf := make([]byte, 0, attrs.Length)
	w := &sliceWriter{buf: buf}
	if err := c.copyToSinkWithSummary(attrs, w); err != nil {
		return nil, err
	}
	return w.buf, nil
}

type sliceWriter struct{ buf []byte }

func (w *sliceWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// ReadAllLines reads path, decodes it with charset, and splits on \r?\n,
// dropping a single trailing empty element if present.
func (c *Client) ReadAllLines(path string, charset string) ([]string, error) {
	raw, err := c.ReadAllBytes(path)
	if err != nil {
		return nil, err
	}
	text, err := decodeCharset(raw, charset)
	if err != nil {
		return nil, err
	}
	lines := splitLines(text)
	return lines, nil
}

func splitLines(text string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			end := i
			if end > start && text[end-1] == '\r' {
				end--
			}
			lines = append(lines, text[start:end])
			start = i + 1
		}
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}

// CopyToSink streams path's full contents into sink.
func (c *Client) CopyToSink(path string, sink io.Writer) error {
	attrs, err := c.ReadAttributes(path)
	if err != nil {
		return err
	}
	if attrs.IsDirectory() {
		return dfserr.InvalidArgument("%s is a directory", path)
	}
	return c.copyToSinkWithSummary(attrs, sink)
}

func (c *Client) copyToSinkWithSummary(attrs FileSummary, sink io.Writer) error {
	if len(attrs.Blocks) == 0 {
		if attrs.Length == 0 {
			return nil
		}
		return dfserr.Infrastructuref("copyToSink", "file %s has length %d but no blocks", attrs.Path, attrs.Length)
	}

	for _, block := range attrs.Blocks {
		if err := c.readOneBlock(block, sink); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) readOneBlock(block BlockLocation, sink io.Writer) error {
	descriptor := toDatanodeDescriptor(block)
	var lastErr error
	for _, replica := range block.Replicas {
		target := c.rewriteHost(replica.Host)
		conn, err := datanode.Dial(datanode.HostEndpoint{Host: target, Port: datanode.DefaultDataPort}, c.datanodeOpts)
		if err != nil {
			lastErr = err
			continue
		}
		_, err = datanode.ReadBlock(conn, descriptor, c.clientName, sink)
		conn.Close()
		if err == nil {
			return nil
		}
		if dfserr.IsCallerStream(err) {
			return err
		}
		lastErr = err
	}
	return dfserr.Infrastructure("read-block", lastErr)
}

// CopyFromSource creates path and streams source into it as a sequence of
// blocks, allocating each from the coordinator as the previous one fills.
func (c *Client) CopyFromSource(path string, source io.Reader) error {
	if err := dfspath.RequireAbsolute(path); err != nil {
		return err
	}
	normalized := dfspath.Normalize(path)

	existing, err := c.coord.Stat(normalized)
	if err != nil {
		return err
	}
	if existing != nil {
		return dfserr.Infrastructuref("create", "%s already exists", path)
	}

	created, err := c.coord.Create(normalized, true, c.defaultReplicas, c.defaultBlockSize)
	if err != nil {
		return err
	}

	peek := newPeekReader(source)
	var (
		fileID    = created.FileID
		blockSize = c.defaultBlockSize
		written   uint64
		previous  *coordinator.BlockLocation
		first     = true
	)

	// At least one block is always added, even for an empty source: §4.8
	// requires writing 0 bytes to still create exactly one empty, last=true
	// packet rather than leaving the file block-less.
	for {
		if !first {
			eof, err := peek.atEOF()
			if err != nil {
				return dfserr.CallerStream(err)
			}
			if eof {
				break
			}
		}
		first = false

		block, err := c.coord.AddBlock(normalized, fileID, previous)
		if err != nil {
			return err
		}
		if len(block.Replicas) == 0 {
			return dfserr.Infrastructuref("addBlock", "no replicas returned for new block")
		}

		remaining := blockSize - (written % blockSize)
		limited := &limitedReader{r: peek, limit: int64(remaining)}

		descriptor := toDatanodeDescriptorFromInternal(block)
		target := c.rewriteHost(block.Replicas[0].HostName)
		conn, err := datanode.Dial(datanode.HostEndpoint{Host: target, Port: datanode.DefaultDataPort}, c.datanodeOpts)
		if err != nil {
			return dfserr.Infrastructure("write-block", err)
		}
		n, err := datanode.WriteBlock(conn, descriptor, c.clientName, toDatanodeTargets(block.Replicas), limited)
		conn.Close()
		if err != nil {
			return err
		}

		written += uint64(n)
		block.Length = uint64(n)
		previous = &block
	}

	ok, err := c.coord.Complete(normalized, fileID, previous)
	if err != nil {
		return err
	}
	if !ok {
		return dfserr.Infrastructuref("complete", "coordinator rejected complete for %s", path)
	}
	return nil
}

// Delete removes path non-recursively.
func (c *Client) Delete(path string) error {
	if err := dfspath.RequireAbsolute(path); err != nil {
		return err
	}
	ok, err := c.coord.Delete(dfspath.Normalize(path))
	if err != nil {
		return err
	}
	if !ok {
		return dfserr.Infrastructuref("delete", "coordinator rejected delete for %s", path)
	}
	return nil
}

// DeleteIfExists attempts delete; on failure it consults Stat to decide
// whether the path was already absent.
func (c *Client) DeleteIfExists(path string) (bool, error) {
	if err := dfspath.RequireAbsolute(path); err != nil {
		return false, err
	}
	normalized := dfspath.Normalize(path)

	existed, statErr := c.coord.Stat(normalized)
	if statErr != nil {
		return false, statErr
	}
	if existed == nil {
		return false, nil
	}

	ok, err := c.coord.Delete(normalized)
	if err != nil {
		after, statErr2 := c.coord.Stat(normalized)
		if statErr2 == nil && after == nil {
			return false, nil
		}
		return false, dfserr.Infrastructure("deleteIfExists", err)
	}
	return ok, nil
}

func (c *Client) rewriteHost(host string) string {
	if c.localMode {
		return "localhost"
	}
	return host
}

func toDatanodeDescriptor(b BlockLocation) datanode.BlockDescriptor {
	replicas := make([]datanode.HostEndpoint, 0, len(b.Replicas))
	for _, r := range b.Replicas {
		replicas = append(replicas, datanode.HostEndpoint{Host: r.Host, Port: datanode.DefaultDataPort})
	}
	return datanode.BlockDescriptor{
		PoolID:          b.PoolID,
		BlockID:         b.BlockID,
		GenerationStamp: b.GenerationStamp,
		Length:          b.Length,
		Replicas:        replicas,
	}
}

func toDatanodeDescriptorFromInternal(b coordinator.BlockLocation) datanode.BlockDescriptor {
	replicas := make([]datanode.HostEndpoint, 0, len(b.Replicas))
	for _, r := range b.Replicas {
		replicas = append(replicas, datanode.HostEndpoint{Host: r.HostName, Port: datanode.DefaultDataPort})
	}
	return datanode.BlockDescriptor{
		PoolID:          b.PoolID,
		BlockID:         b.BlockID,
		GenerationStamp: b.GenerationStamp,
		Length:          b.Length,
		Replicas:        replicas,
	}
}

func toDatanodeTargets(replicas []coordinator.DatanodeEndpoint) []datanode.HostEndpoint {
	out := make([]datanode.HostEndpoint, 0, len(replicas))
	for _, r := range replicas {
		out = append(out, datanode.HostEndpoint{Host: r.HostName, Port: datanode.DefaultDataPort})
	}
	return out
}

// peekReader supports a single-byte look-ahead so the write loop can detect
// end-of-input precisely without consuming the byte it peeked at.
type peekReader struct {
	r         io.Reader
	buffered  byte
	hasBuffer bool
	eof       bool
}

func newPeekReader(r io.Reader) *peekReader {
	return &peekReader{r: r}
}

func (p *peekReader) atEOF() (bool, error) {
	if p.hasBuffer {
		return false, nil
	}
	if p.eof {
		return true, nil
	}
	var b [1]byte
	n, err := p.r.Read(b[:])
	if n == 1 {
		p.buffered = b[0]
		p.hasBuffer = true
		return false, nil
	}
	if err == io.EOF {
		p.eof = true
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return p.atEOF()
}

func (p *peekReader) Read(out []byte) (int, error) {
	if len(out) == 0 {
		return 0, nil
	}
	total := 0
	if p.hasBuffer {
		out[0] = p.buffered
		p.hasBuffer = false
		total = 1
	}
	if total == len(out) {
		return total, nil
	}
	if p.eof {
		if total > 0 {
			return total, nil
		}
		return 0, io.EOF
	}
	n, err := p.r.Read(out[total:])
	if err == io.EOF {
		p.eof = true
		if total+n > 0 {
			return total + n, nil
		}
	}
	return total + n, err
}

// limitedReader yields at most limit bytes from r before reporting EOF,
// used to bound a single block's worth of the write source.
type limitedReader struct {
	r     io.Reader
	limit int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.limit <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > l.limit {
		p = p[:l.limit]
	}
	n, err := l.r.Read(p)
	l.limit -= int64(n)
	return n, err
}

// decodeCharset decodes raw bytes per the requested charset name. Only
// UTF-8 and US-ASCII (a strict subset of UTF-8) are supported directly;
// anything else is rejected as an invalid argument rather than silently
// mojibaked, per §4.8's requirement that charset be explicit.
func decodeCharset(raw []byte, charset string) (string, error) {
	switch normalizeCharsetName(charset) {
	case "utf-8", "us-ascii":
		return string(raw), nil
	default:
		return "", dfserr.InvalidArgument("unsupported charset %q", charset)
	}
}

func normalizeCharsetName(charset string) string {
	out := make([]byte, 0, len(charset))
	for i := 0; i < len(charset); i++ {
		ch := charset[i]
		if ch >= 'A' && ch <= 'Z' {
			ch = ch - 'A' + 'a'
		}
		out = append(out, ch)
	}
	return string(out)
}
