package datanode

import (
	"io"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/valier-io/hdfs-client/dfserr"
)

// ConnectOptions configures storage-node connection and read timeouts.
type ConnectOptions struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

func (o ConnectOptions) withDefaults() ConnectOptions {
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = 5 * time.Second
	}
	if o.ReadTimeout == 0 {
		o.ReadTimeout = 30 * time.Second
	}
	return o
}

// Connection is one TCP socket to a storage node's data-transfer port,
// owned end-to-end by a single read or write operation.
type Connection struct {
	conn        net.Conn
	readTimeout time.Duration
}

// Dial opens a TCP connection to a storage node. There is no handshake on
// this protocol; the first bytes sent are the op-request header.
func Dial(endpoint HostEndpoint, opts ConnectOptions) (*Connection, error) {
	opts = opts.withDefaults()
	dialer := net.Dialer{Timeout: opts.ConnectTimeout}
	raw, err := dialer.Dial("tcp", endpoint.String())
	if err != nil {
		return nil, dfserr.Infrastructure("datanode-connect", err)
	}
	return &Connection{conn: raw, readTimeout: opts.ReadTimeout}, nil
}

func (c *Connection) Close() error {
	return c.conn.Close()
}

func (c *Connection) deadline() {
	if c.readTimeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
}

// ReadBlock streams block's full declared length from conn into sink. It
// sends the read-block op request, validates the block-op-response, then
// consumes data packets until lastPacketInBlock, forwarding payload bytes
// to sink as they arrive. Sink write failures are wrapped as CallerStream,
// distinguishing them from node/protocol failures.
func ReadBlock(conn *Connection, block BlockDescriptor, clientName string, sink io.Writer) (int64, error) {
	req := EncodeReadBlockRequest(block, clientName, 0, block.Length)
	if err := writeOpRequest(conn.conn, opReadBlock, req); err != nil {
		return 0, dfserr.Infrastructure("read-block", err)
	}

	conn.deadline()
	if err := readOpResponse(conn.conn); err != nil {
		return 0, dfserr.Infrastructure("read-block", err)
	}

	var total int64
	for {
		conn.deadline()
		header, _, data, err := ReadPacket(conn.conn)
		if err != nil {
			return total, dfserr.Infrastructure("read-block", err)
		}

		if len(data) > 0 {
			if _, err := sink.Write(data); err != nil {
				return total, dfserr.CallerStream(err)
			}
			total += int64(len(data))
		}

		if header.LastPacketInBlock {
			break
		}
	}

	if uint64(total) != block.Length {
		logrus.WithFields(logrus.Fields{"block": block.BlockID, "want": block.Length, "got": total}).
			Warn("read-block produced a different length than declared")
	}

	return total, nil
}

// WriteBlock streams bytes read from source into conn as a sequence of
// checksummed data packets, waiting for a pipeline ack after each one, then
// emits a final zero-length last=true packet. It returns the number of
// payload bytes actually written (excluding headers and checksums). Source
// read failures are wrapped as CallerStream.
func WriteBlock(conn *Connection, block BlockDescriptor, clientName string, targets []HostEndpoint, source io.Reader) (int64, error) {
	req := EncodeWriteBlockRequest(block, clientName, targets)
	if err := writeOpRequest(conn.conn, opWriteBlock, req); err != nil {
		return 0, dfserr.Infrastructure("write-block", err)
	}

	conn.deadline()
	if err := readOpResponse(conn.conn); err != nil {
		return 0, dfserr.Infrastructure("write-block", err)
	}

	var (
		written int64
		seqno   int64
		buf     = make([]byte, MaxPacketPayload)
	)

	for {
		n, readErr := io.ReadFull(source, buf)
		if readErr == io.ErrUnexpectedEOF {
			readErr = nil
		}
		if readErr != nil && readErr != io.EOF {
			return written, dfserr.CallerStream(readErr)
		}
		if n == 0 {
			break
		}

		data := buf[:n]
		checksums := ComputeChecksums(data)
		header := PacketHeader{
			OffsetInBlock:  written,
			SequenceNumber: seqno,
			DataLen:        int32(n),
		}
		if err := WritePacket(conn.conn, header, checksums, data); err != nil {
			return written, dfserr.Infrastructure("write-block", err)
		}
		conn.deadline()
		if err := ReadPipelineAck(conn.conn, seqno); err != nil {
			return written, dfserr.Infrastructure("write-block", err)
		}

		written += int64(n)
		seqno++

		if readErr == io.EOF {
			break
		}
	}

	finalHeader := PacketHeader{
		OffsetInBlock:     written,
		SequenceNumber:    seqno,
		LastPacketInBlock: true,
	}
	if err := WritePacket(conn.conn, finalHeader, nil, nil); err != nil {
		return written, dfserr.Infrastructure("write-block", err)
	}
	conn.deadline()
	if err := ReadPipelineAck(conn.conn, seqno); err != nil {
		return written, dfserr.Infrastructure("write-block", err)
	}

	return written, nil
}
