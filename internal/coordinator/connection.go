package coordinator

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/valier-io/hdfs-client/dfserr"
	"github.com/valier-io/hdfs-client/internal/wire"
)

const (
	hadoopRPCHeader     = "hrpc"
	rpcVersion          = 9
	rpcServiceClassPB   = 0
	authProtocolSimple  = 0
	connectionContextID = -3
)

// ClientProtocolName and ClientProtocolVersion identify the coordinator's
// client-facing metadata protocol (the only protocol used by everything
// except GetVersion).
const (
	ClientProtocolName    = "org.apache.hadoop.hdfs.protocol.ClientProtocol"
	ClientProtocolVersion = 1
)

// InternalProtocolName is the coordinator-internal protocol used solely to
// fetch server build/version information.
const (
	InternalProtocolName    = "org.apache.hadoop.hdfs.server.protocol.NamenodeProtocol"
	InternalProtocolVersion = 1
)

// Identity is the per-client identity carried on every RPC request header:
// a stable 16-byte opaque id plus a human-readable client name used in
// write-pipeline operations.
type Identity struct {
	ClientID   [16]byte
	ClientName string
}

// UserInformation names the identity presented in the connection-context
// handshake message. It is a configuration input, never inferred from a
// hidden process-global.
type UserInformation struct {
	EffectiveUser string
	RealUser      string
}

// Endpoint is a parsed "dfs://host:port" coordinator address.
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// ParseEndpoint validates and parses a coordinator URI of the form
// "dfs://host:port".
func ParseEndpoint(uri string) (Endpoint, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return Endpoint{}, dfserr.InvalidArgument("malformed coordinator endpoint %q: %v", uri, err)
	}
	if u.Scheme != "dfs" {
		return Endpoint{}, dfserr.InvalidArgument("coordinator endpoint %q must use the dfs:// scheme", uri)
	}
	if u.Hostname() == "" {
		return Endpoint{}, dfserr.InvalidArgument("coordinator endpoint %q is missing a host", uri)
	}
	portStr := u.Port()
	if portStr == "" {
		return Endpoint{}, dfserr.InvalidArgument("coordinator endpoint %q is missing a port", uri)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return Endpoint{}, dfserr.InvalidArgument("coordinator endpoint %q has an invalid port", uri)
	}
	return Endpoint{Host: u.Hostname(), Port: port}, nil
}

// ConnectOptions configures connection timeouts and identity.
type ConnectOptions struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	Identity       Identity
	User           UserInformation
}

func (o ConnectOptions) withDefaults() ConnectOptions {
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.ReadTimeout == 0 {
		o.ReadTimeout = 30 * time.Second
	}
	return o
}

// Connection is one framed, handshaken socket to a coordinator, ready to
// carry per-call RPC envelopes. It owns the underlying TCP socket.
type Connection struct {
	conn        net.Conn
	reader      *bufio.Reader
	readTimeout time.Duration
	nextCallID  int32
}

// Dial opens a TCP connection to endpoint, performs the hrpc handshake
// (magic header, version/service-class/auth bytes, then the connection
// context carrying user identity and protocolName), and returns a
// ready-to-use Connection. protocolName is the protocol this connection's
// connection-context announces; each call's request header names its own
// protocol, so a call need not use the announced one.
func Dial(endpoint Endpoint, protocolName string, opts ConnectOptions) (*Connection, error) {
	opts = opts.withDefaults()

	dialer := net.Dialer{Timeout: opts.ConnectTimeout}
	raw, err := dialer.Dial("tcp", endpoint.String())
	if err != nil {
		return nil, dfserr.Infrastructure("connect", err)
	}

	c := &Connection{
		conn:        raw,
		reader:      bufio.NewReader(raw),
		readTimeout: opts.ReadTimeout,
	}

	if err := c.handshake(protocolName, opts); err != nil {
		raw.Close()
		return nil, dfserr.Infrastructure("handshake", err)
	}

	logrus.WithFields(logrus.Fields{"endpoint": endpoint.String(), "protocol": protocolName}).
		Debug("coordinator connection established")

	return c, nil
}

func (c *Connection) handshake(protocolName string, opts ConnectOptions) error {
	header := make([]byte, 0, 7)
	header = append(header, hadoopRPCHeader...)
	header = append(header, rpcVersion, rpcServiceClassPB, authProtocolSimple)

	ctxHeader := wire.NewBuilder().
		Uint64(1, 0). // rpcKind = RPC_PROTOCOL_BUFFER
		Uint64(2, 0). // rpcOp = RPC_FINAL_PACKET
		SInt64(3, connectionContextID).
		Bytes_(4, opts.Identity.ClientID[:]).
		SInt64(5, -1). // retryCount
		Bytes()

	userInfo := wire.NewBuilder().
		String(1, opts.User.EffectiveUser).
		String(2, opts.User.RealUser).
		Bytes()

	connCtx := wire.NewBuilder().
		Message(2, userInfo).
		String(3, protocolName).
		Bytes()

	payload := appendDelimited(nil, ctxHeader)
	payload = appendDelimited(payload, connCtx)

	lenPrefix := make([]byte, 4)
	binary.BigEndian.PutUint32(lenPrefix, uint32(len(payload)))

	if _, err := c.conn.Write(header); err != nil {
		return err
	}
	if _, err := c.conn.Write(lenPrefix); err != nil {
		return err
	}
	_, err := c.conn.Write(payload)
	return err
}

// appendDelimited appends msg to buf prefixed with msg's length as a
// protobuf varint, i.e. writeDelimitedTo's wire shape.
func appendDelimited(buf, msg []byte) []byte {
	buf = protowire.AppendVarint(buf, uint64(len(msg)))
	return append(buf, msg...)
}

// NextCallID returns the next monotonically increasing call id for this
// connection, starting at 0.
func (c *Connection) NextCallID() int32 {
	id := c.nextCallID
	c.nextCallID++
	return id
}

// Write sends a fully framed request (length prefix already applied by the
// caller's framer) to the socket.
func (c *Connection) Write(frame []byte) error {
	_, err := c.conn.Write(frame)
	return err
}

// ReadFrame reads one 32-bit-length-prefixed frame from the socket, per
// the RPC response envelope (§4.4): a zero or negative length is rejected.
func (c *Connection) ReadFrame() ([]byte, error) {
	if c.readTimeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
	var lenBuf [4]byte
	if _, err := readFull(c.reader, lenBuf[:]); err != nil {
		return nil, err
	}
	n := int32(binary.BigEndian.Uint32(lenBuf[:]))
	if n <= 0 {
		return nil, fmt.Errorf("invalid response frame length %d", n)
	}
	buf := make([]byte, n)
	if _, err := readFull(c.reader, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Close releases the underlying socket. Safe to call more than once.
func (c *Connection) Close() error {
	return c.conn.Close()
}
