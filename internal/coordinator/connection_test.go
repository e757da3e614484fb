package coordinator

import (
	"bufio"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valier-io/hdfs-client/internal/wire"
)

func pipeConnection() (*Connection, net.Conn) {
	client, server := net.Pipe()
	c := &Connection{
		conn:        client,
		reader:      bufio.NewReader(client),
		readTimeout: time.Second,
	}
	return c, server
}

func TestParseEndpointAcceptsDfsScheme(t *testing.T) {
	ep, err := ParseEndpoint("dfs://coordinator-1:9000")
	require.NoError(t, err)
	assert.Equal(t, "coordinator-1", ep.Host)
	assert.Equal(t, 9000, ep.Port)
	assert.Equal(t, "coordinator-1:9000", ep.String())
}

func TestParseEndpointRejectsWrongScheme(t *testing.T) {
	_, err := ParseEndpoint("http://coordinator-1:9000")
	assert.Error(t, err)
}

func TestParseEndpointRejectsMissingPort(t *testing.T) {
	_, err := ParseEndpoint("dfs://coordinator-1")
	assert.Error(t, err)
}

func TestHandshakeWritesMagicHeaderAndConnectionContext(t *testing.T) {
	c, server := pipeConnection()
	defer server.Close()

	opts := ConnectOptions{User: UserInformation{EffectiveUser: "alice"}}

	done := make(chan error, 1)
	go func() {
		done <- c.handshake(ClientProtocolName, opts)
	}()

	header := make([]byte, 7)
	_, err := readFullConn(server, header)
	require.NoError(t, err)
	assert.Equal(t, "hrpc", string(header[:4]))
	assert.Equal(t, byte(rpcVersion), header[4])

	var lenBuf [4]byte
	_, err = readFullConn(server, lenBuf[:])
	require.NoError(t, err)
	n := binary.BigEndian.Uint32(lenBuf[:])
	payload := make([]byte, n)
	_, err = readFullConn(server, payload)
	require.NoError(t, err)

	require.NoError(t, <-done)

	// payload is two varint-delimited messages: ctxHeader then connCtx.
	hdrLen, consumed := consumeVarintLen(payload)
	require.Greater(t, consumed, 0)
	rest := payload[consumed+hdrLen:]
	ctxLen, consumed2 := consumeVarintLen(rest)
	require.Greater(t, consumed2, 0)
	connCtxBytes := rest[consumed2 : consumed2+ctxLen]

	fields, err := wire.ParseFields(connCtxBytes)
	require.NoError(t, err)
	protoField, ok := wire.First(fields, 3)
	require.True(t, ok)
	assert.Equal(t, ClientProtocolName, string(protoField.Bytes))
}

func readFullConn(r io.Reader, buf []byte) (int, error) {
	return io.ReadFull(r, buf)
}
