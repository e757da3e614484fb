package datanode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/valier-io/hdfs-client/dfserr"
)

func pipeDatanodeConnection() (*Connection, net.Conn) {
	client, server := net.Pipe()
	return &Connection{conn: client, readTimeout: time.Second}, server
}

// readOp reads the fixed 3-byte op header plus the varint-delimited op
// message off server, returning the opcode and message bytes.
func readOp(t *testing.T, server net.Conn) (byte, []byte) {
	t.Helper()
	var fixed [3]byte
	_, err := io.ReadFull(server, fixed[:])
	require.NoError(t, err)
	assert.Equal(t, uint16(dataTransferVersion), binary.BigEndian.Uint16(fixed[:2]))
	msg, err := readVarintDelimited(server)
	require.NoError(t, err)
	return fixed[2], msg
}

func writeOpResponseOK(t *testing.T, server net.Conn) {
	t.Helper()
	body := encodeTestBlockOpResponse(0, "")
	buf := protowire.AppendVarint(nil, uint64(len(body)))
	buf = append(buf, body...)
	_, err := server.Write(buf)
	require.NoError(t, err)
}

func TestReadBlockStreamsPacketsToSink(t *testing.T) {
	conn, server := pipeDatanodeConnection()
	defer server.Close()

	block := BlockDescriptor{PoolID: "bp-1", BlockID: 42, GenerationStamp: 1, Length: 6}
	var sink bytes.Buffer

	done := make(chan struct {
		n   int64
		err error
	}, 1)
	go func() {
		n, err := ReadBlock(conn, block, "test-client", &sink)
		done <- struct {
			n   int64
			err error
		}{n, err}
	}()

	opcode, _ := readOp(t, server)
	assert.Equal(t, opReadBlock, opcode)
	writeOpResponseOK(t, server)

	data1 := []byte("Hel")
	require.NoError(t, WritePacket(server, PacketHeader{SequenceNumber: 0, DataLen: int32(len(data1))}, ComputeChecksums(data1), data1))
	data2 := []byte("lo!")
	require.NoError(t, WritePacket(server, PacketHeader{OffsetInBlock: 3, SequenceNumber: 1, DataLen: int32(len(data2)), LastPacketInBlock: true}, ComputeChecksums(data2), data2))

	result := <-done
	require.NoError(t, result.err)
	assert.Equal(t, int64(6), result.n)
	assert.Equal(t, "Hello!", sink.String())
}

func TestReadBlockWrapsSinkErrorsAsCallerStream(t *testing.T) {
	conn, server := pipeDatanodeConnection()
	defer server.Close()

	block := BlockDescriptor{Length: 3}
	failingSink := failingWriter{err: errors.New("disk full")}

	done := make(chan error, 1)
	go func() {
		_, err := ReadBlock(conn, block, "test-client", failingSink)
		done <- err
	}()

	readOp(t, server)
	writeOpResponseOK(t, server)
	data := []byte("abc")
	require.NoError(t, WritePacket(server, PacketHeader{DataLen: int32(len(data))}, ComputeChecksums(data), data))

	err := <-done
	require.Error(t, err)
	assert.True(t, dfserr.IsCallerStream(err))
}

type failingWriter struct{ err error }

func (f failingWriter) Write(p []byte) (int, error) { return 0, f.err }

func TestWriteBlockEmitsContiguousSequenceNumbersAndFinalEmptyPacket(t *testing.T) {
	conn, server := pipeDatanodeConnection()
	defer server.Close()

	block := BlockDescriptor{Length: 0}
	source := bytes.NewReader(bytes.Repeat([]byte{0x7}, MaxPacketPayload+10))

	done := make(chan struct {
		n   int64
		err error
	}, 1)
	go func() {
		n, err := WriteBlock(conn, block, "test-client", nil, source)
		done <- struct {
			n   int64
			err error
		}{n, err}
	}()

	opcode, _ := readOp(t, server)
	assert.Equal(t, opWriteBlock, opcode)
	writeOpResponseOK(t, server)

	var seqnos []int64
	var lastLast bool
	for {
		header, _, data, err := ReadPacket(server)
		require.NoError(t, err)
		seqnos = append(seqnos, header.SequenceNumber)
		require.NoError(t, WritePipelineAck(server, PipelineAck{SequenceNumber: header.SequenceNumber, Statuses: []uint64{0}}))
		if header.LastPacketInBlock {
			lastLast = true
			assert.Equal(t, 0, len(data))
			break
		}
	}

	assert.True(t, lastLast)
	for i, s := range seqnos {
		assert.Equal(t, int64(i), s)
	}

	result := <-done
	require.NoError(t, result.err)
	assert.Equal(t, int64(MaxPacketPayload+10), result.n)
}

func TestWriteBlockZeroBytesEmitsOneEmptyLastPacket(t *testing.T) {
	conn, server := pipeDatanodeConnection()
	defer server.Close()

	block := BlockDescriptor{Length: 0}
	source := bytes.NewReader(nil)

	done := make(chan struct {
		n   int64
		err error
	}, 1)
	go func() {
		n, err := WriteBlock(conn, block, "test-client", nil, source)
		done <- struct {
			n   int64
			err error
		}{n, err}
	}()

	readOp(t, server)
	writeOpResponseOK(t, server)

	header, _, data, err := ReadPacket(server)
	require.NoError(t, err)
	assert.True(t, header.LastPacketInBlock)
	assert.Equal(t, int64(0), header.SequenceNumber)
	assert.Empty(t, data)
	require.NoError(t, WritePipelineAck(server, PipelineAck{SequenceNumber: 0, Statuses: []uint64{0}}))

	result := <-done
	require.NoError(t, result.err)
	assert.Equal(t, int64(0), result.n)
}

func TestWriteBlockWrapsSourceErrorsAsCallerStream(t *testing.T) {
	conn, server := pipeDatanodeConnection()
	defer server.Close()

	block := BlockDescriptor{Length: 0}
	failingSource := failingReader{err: errors.New("network share unavailable")}

	done := make(chan error, 1)
	go func() {
		_, err := WriteBlock(conn, block, "test-client", nil, failingSource)
		done <- err
	}()

	readOp(t, server)
	writeOpResponseOK(t, server)

	err := <-done
	require.Error(t, err)
	assert.True(t, dfserr.IsCallerStream(err))
}

type failingReader struct{ err error }

func (f failingReader) Read(p []byte) (int, error) { return 0, f.err }
