package coordinator

import (
	"bufio"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valier-io/hdfs-client/internal/wire"
)

// fakeCoordinator reads one length-prefixed call frame off server, decodes
// the rpc-header/request-header/body triple, and lets the test assert on
// methodName/body before writing back a canned response.
func fakeCoordinator(t *testing.T, server net.Conn) (methodName string, body []byte) {
	t.Helper()
	var lenBuf [4]byte
	_, err := readFullConn(server, lenBuf[:])
	require.NoError(t, err)
	n := binary.BigEndian.Uint32(lenBuf[:])
	payload := make([]byte, n)
	_, err = readFullConn(server, payload)
	require.NoError(t, err)

	rest := payload
	_, hdrLen, consumed := mustConsumeDelimited(t, rest)
	rest = rest[consumed+hdrLen:]
	reqHeaderBytes, reqLen, consumed2 := mustConsumeDelimited(t, rest)
	rest = rest[consumed2+reqLen:]
	bodyBytes, bLen, consumed3 := mustConsumeDelimited(t, rest)
	rest = rest[consumed3+bLen:]
	_ = rest

	reqFields, err := wire.ParseFields(reqHeaderBytes)
	require.NoError(t, err)
	mf, ok := wire.First(reqFields, 1)
	require.True(t, ok)
	return string(mf.Bytes), bodyBytes
}

func mustConsumeDelimited(t *testing.T, buf []byte) ([]byte, int, int) {
	t.Helper()
	l, n := consumeVarintLen(buf)
	require.Greater(t, n, 0)
	return buf[n : n+l], l, n
}

func writeResponse(t *testing.T, server net.Conn, status rpcStatus, exceptionClass, errMsg string, body []byte) {
	t.Helper()
	hb := wire.NewBuilder().Uint64(2, uint64(status))
	if exceptionClass != "" {
		hb.String(4, exceptionClass)
	}
	if errMsg != "" {
		hb.String(5, errMsg)
	}
	header := hb.Bytes()

	payload := appendDelimited(nil, header)
	payload = append(payload, body...)

	frame := make([]byte, 4, 4+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	frame = append(frame, payload...)

	_, err := server.Write(frame)
	require.NoError(t, err)
}

func TestCallRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	conn := &Connection{conn: client, reader: bufio.NewReader(client), readTimeout: time.Second}
	identity := Identity{ClientName: "test-client"}

	respBody := wire.NewBuilder().String(1, "ack").Bytes()

	done := make(chan struct {
		body []byte
		err  error
	}, 1)
	go func() {
		b, err := Call(conn, identity, ClientProtocolName, ClientProtocolVersion, "getFileInfo", wire.NewBuilder().String(1, "/a").Bytes())
		done <- struct {
			body []byte
			err  error
		}{b, err}
	}()

	method, reqBody := fakeCoordinator(t, server)
	assert.Equal(t, "getFileInfo", method)
	fields, err := wire.ParseFields(reqBody)
	require.NoError(t, err)
	f, ok := wire.First(fields, 1)
	require.True(t, ok)
	assert.Equal(t, "/a", string(f.Bytes))

	writeResponse(t, server, statusSuccess, "", "", respBody)

	result := <-done
	require.NoError(t, result.err)
	assert.Equal(t, respBody, result.body)
}

func TestCallReturnsInfrastructureErrorOnFailureStatus(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	conn := &Connection{conn: client, reader: bufio.NewReader(client), readTimeout: time.Second}
	identity := Identity{ClientName: "test-client"}

	done := make(chan error, 1)
	go func() {
		_, err := Call(conn, identity, ClientProtocolName, ClientProtocolVersion, "delete", wire.NewBuilder().String(1, "/missing").Bytes())
		done <- err
	}()

	fakeCoordinator(t, server)
	writeResponse(t, server, statusError, "java.io.FileNotFoundException", "File /missing does not exist", nil)

	err := <-done
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FileNotFoundException")
}

func TestDeriveMethodName(t *testing.T) {
	cases := map[string]string{
		"GetListingRequestProto":  "getListing",
		"MkdirsRequestProto":      "mkdirs",
		"CompleteRequest":         "complete",
		"GetFileInfoRequestProto": "getFileInfo",
	}
	for in, want := range cases {
		assert.Equal(t, want, DeriveMethodName(in), in)
	}
}
