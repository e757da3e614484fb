package datanode

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/valier-io/hdfs-client/internal/wire"
)

// Wire constants mirroring the reference server's DataTransferProtocol.
const (
	dataTransferVersion = 28

	opWriteBlock byte = 0x50
	opReadBlock  byte = 0x51

	// pipelineSetupCreate is BlockConstructionStageProto's
	// PIPELINE_SETUP_CREATE, the only stage this client ever requests —
	// it never resumes or appends to an existing pipeline.
	pipelineSetupCreate = 6

	blockOpStatusSuccess = 0
)

// encodeClientOperationHeader builds the base-header + client-operation-header
// pair shared by both read and write requests.
func encodeClientOperationHeader(block BlockDescriptor, clientName string) []byte {
	extBlock := wire.NewBuilder().
		String(1, block.PoolID).
		Uint64(2, block.BlockID).
		Uint64(3, block.GenerationStamp).
		Uint64(4, block.Length).
		Bytes()
	baseHeader := wire.NewBuilder().Message(1, extBlock).Bytes()
	return wire.NewBuilder().Message(1, baseHeader).String(2, clientName).Bytes()
}

// EncodeReadBlockRequest builds the op-read-block message: the client
// operation header plus offset/length/sendChecksums/caching strategy.
func EncodeReadBlockRequest(block BlockDescriptor, clientName string, offset, length uint64) []byte {
	opHeader := encodeClientOperationHeader(block, clientName)
	caching := wire.NewBuilder().Bool(1, true).Bytes() // dropBehind=true, a harmless default
	return wire.NewBuilder().
		Message(1, opHeader).
		Uint64(2, offset).
		Uint64(3, length).
		Bool(4, false). // sendChecksums: verification is out of scope
		Message(5, caching).
		Bytes()
}

// EncodeWriteBlockRequest builds the op-write-block message: the client
// operation header, downstream pipeline targets, stage, byte-received
// counters, generation stamp, and requested checksum.
func EncodeWriteBlockRequest(block BlockDescriptor, clientName string, targets []HostEndpoint) []byte {
	opHeader := encodeClientOperationHeader(block, clientName)

	b := wire.NewBuilder().Message(1, opHeader)
	for _, t := range targets {
		dnID := wire.NewBuilder().String(1, "").String(2, t.Host).Bytes()
		dnInfo := wire.NewBuilder().Message(1, dnID).Bytes()
		b.Message(2, dnInfo)
	}
	b.Uint64(3, pipelineSetupCreate).
		Uint64(4, uint64(len(targets))).
		Uint64(5, 0). // minBytesRcvd
		Uint64(6, 0). // maxBytesRcvd
		Uint64(7, block.GenerationStamp)

	checksum := wire.NewBuilder().
		Uint64(1, checksumTypeCRC32).
		Uint64(2, BytesPerChecksumChunk).
		Bytes()
	b.Message(8, checksum)

	caching := wire.NewBuilder().Bool(1, true).Bytes()
	b.Message(9, caching)

	return b.Bytes()
}

// DecodeBlockOpResponse parses a block-op-response message, returning a
// non-nil error describing the node's status and message when status is
// not SUCCESS.
func DecodeBlockOpResponse(buf []byte) error {
	fields, err := wire.ParseFields(buf)
	if err != nil {
		return fmt.Errorf("datanode: malformed block-op-response: %w", err)
	}
	statusField, ok := wire.First(fields, 1)
	if !ok {
		return fmt.Errorf("datanode: block-op-response is missing status")
	}
	if statusField.Varint != blockOpStatusSuccess {
		msg := ""
		if f, ok := wire.First(fields, 2); ok {
			msg = string(f.Bytes)
		}
		return fmt.Errorf("datanode: status %d: %s", statusField.Varint, msg)
	}
	return nil
}

// PacketHeader is one data packet's header fields (PacketHeaderProto).
type PacketHeader struct {
	OffsetInBlock     int64
	SequenceNumber    int64
	LastPacketInBlock bool
	DataLen           int32
	SyncBlock         bool
}

func encodePacketHeader(h PacketHeader) []byte {
	return wire.NewBuilder().
		SInt64(1, h.OffsetInBlock).
		SInt64(2, h.SequenceNumber).
		Bool(3, h.LastPacketInBlock).
		SInt64(4, int64(h.DataLen)).
		Bool(5, h.SyncBlock).
		Bytes()
}

func decodePacketHeader(buf []byte) (PacketHeader, error) {
	fields, err := wire.ParseFields(buf)
	if err != nil {
		return PacketHeader{}, err
	}
	var h PacketHeader
	if f, ok := wire.First(fields, 1); ok {
		h.OffsetInBlock = wire.SInt64(f.Varint)
	}
	if f, ok := wire.First(fields, 2); ok {
		h.SequenceNumber = wire.SInt64(f.Varint)
	}
	if f, ok := wire.First(fields, 3); ok {
		h.LastPacketInBlock = f.Varint != 0
	}
	if f, ok := wire.First(fields, 4); ok {
		h.DataLen = int32(wire.SInt64(f.Varint))
	}
	if f, ok := wire.First(fields, 5); ok {
		h.SyncBlock = f.Varint != 0
	}
	return h, nil
}

// ComputeChecksums returns one big-endian CRC32 value per BytesPerChecksumChunk
// chunk of data (the final chunk may be short), concatenated.
func ComputeChecksums(data []byte) []byte {
	n := (len(data) + BytesPerChecksumChunk - 1) / BytesPerChecksumChunk
	out := make([]byte, 0, n*4)
	for i := 0; i < len(data); i += BytesPerChecksumChunk {
		end := i + BytesPerChecksumChunk
		if end > len(data) {
			end = len(data)
		}
		sum := crc32.ChecksumIEEE(data[i:end])
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], sum)
		out = append(out, buf[:]...)
	}
	return out
}

// WritePacket writes one data packet to w using the asymmetric framing
// documented in §4.6: PLEN counts only itself, the checksums, and the
// data — never HLEN or the header bytes.
func WritePacket(w io.Writer, header PacketHeader, checksums, data []byte) error {
	headerBytes := encodePacketHeader(header)

	plen := 4 + len(checksums) + len(data)
	buf := make([]byte, 0, 4+2+len(headerBytes)+len(checksums)+len(data))
	var plenBuf [4]byte
	binary.BigEndian.PutUint32(plenBuf[:], uint32(plen))
	buf = append(buf, plenBuf[:]...)

	var hlenBuf [2]byte
	binary.BigEndian.PutUint16(hlenBuf[:], uint16(len(headerBytes)))
	buf = append(buf, hlenBuf[:]...)

	buf = append(buf, headerBytes...)
	buf = append(buf, checksums...)
	buf = append(buf, data...)

	_, err := w.Write(buf)
	return err
}

// ReadPacket reads one data packet from r, returning its header, raw
// checksum bytes, and payload.
func ReadPacket(r io.Reader) (PacketHeader, []byte, []byte, error) {
	var plenBuf [4]byte
	if _, err := io.ReadFull(r, plenBuf[:]); err != nil {
		return PacketHeader{}, nil, nil, err
	}
	plen := binary.BigEndian.Uint32(plenBuf[:])
	if plen < 4 {
		return PacketHeader{}, nil, nil, fmt.Errorf("datanode: packet length %d shorter than its own prefix", plen)
	}

	var hlenBuf [2]byte
	if _, err := io.ReadFull(r, hlenBuf[:]); err != nil {
		return PacketHeader{}, nil, nil, err
	}
	hlen := binary.BigEndian.Uint16(hlenBuf[:])

	headerBytes := make([]byte, hlen)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return PacketHeader{}, nil, nil, err
	}
	header, err := decodePacketHeader(headerBytes)
	if err != nil {
		return PacketHeader{}, nil, nil, err
	}

	remaining := int(plen) - 4
	if header.DataLen < 0 || int(header.DataLen) > remaining {
		return PacketHeader{}, nil, nil, fmt.Errorf("datanode: packet dataLen %d exceeds remaining %d bytes", header.DataLen, remaining)
	}
	checksumLen := remaining - int(header.DataLen)

	checksums := make([]byte, checksumLen)
	if _, err := io.ReadFull(r, checksums); err != nil {
		return PacketHeader{}, nil, nil, err
	}
	data := make([]byte, header.DataLen)
	if _, err := io.ReadFull(r, data); err != nil {
		return PacketHeader{}, nil, nil, err
	}

	return header, checksums, data, nil
}

// PipelineAck is one pipeline-ack message: the sequence number it responds
// to and one status per node in the pipeline.
type PipelineAck struct {
	SequenceNumber int64
	Statuses       []uint64
}

func encodePipelineAck(a PipelineAck) []byte {
	b := wire.NewBuilder().SInt64(1, a.SequenceNumber)
	for _, s := range a.Statuses {
		b.Uint64(2, s)
	}
	return b.Bytes()
}

func decodePipelineAck(buf []byte) (PipelineAck, error) {
	fields, err := wire.ParseFields(buf)
	if err != nil {
		return PipelineAck{}, err
	}
	var a PipelineAck
	if f, ok := wire.First(fields, 1); ok {
		a.SequenceNumber = wire.SInt64(f.Varint)
	}
	for _, f := range wire.All(fields, 2) {
		a.Statuses = append(a.Statuses, f.Varint)
	}
	return a, nil
}

// WritePipelineAck is used only by tests to synthesize a node's reply.
func WritePipelineAck(w io.Writer, a PipelineAck) error {
	body := encodePipelineAck(a)
	buf := protowire.AppendVarint(nil, uint64(len(body)))
	buf = append(buf, body...)
	_, err := w.Write(buf)
	return err
}

// ReadPipelineAck reads and validates one varint-length-delimited
// pipeline-ack, checking its sequence number against expectedSeqno and that
// every reported status is success.
func ReadPipelineAck(r io.Reader, expectedSeqno int64) error {
	buf, err := readVarintDelimited(r)
	if err != nil {
		return err
	}
	ack, err := decodePipelineAck(buf)
	if err != nil {
		return err
	}
	if ack.SequenceNumber != expectedSeqno {
		return fmt.Errorf("datanode: pipeline ack seqno %d does not match sent seqno %d", ack.SequenceNumber, expectedSeqno)
	}
	for _, status := range ack.Statuses {
		if status != blockOpStatusSuccess {
			return fmt.Errorf("datanode: pipeline ack reported failure status %d for seqno %d", status, expectedSeqno)
		}
	}
	return nil
}

// writeOpRequest writes the fixed op-request envelope: u16 version, opcode,
// then the operation message prefixed with a protobuf varint length (the
// same writeDelimitedTo-style framing the coordinator protocol uses).
func writeOpRequest(w io.Writer, opcode byte, opMessage []byte) error {
	var header [3]byte
	binary.BigEndian.PutUint16(header[:2], dataTransferVersion)
	header[2] = opcode
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	buf := protowire.AppendVarint(nil, uint64(len(opMessage)))
	buf = append(buf, opMessage...)
	_, err := w.Write(buf)
	return err
}

// readOpResponse reads one varint-length-delimited block-op-response and
// validates its status.
func readOpResponse(r io.Reader) error {
	buf, err := readVarintDelimited(r)
	if err != nil {
		return err
	}
	return DecodeBlockOpResponse(buf)
}

// readVarintDelimited reads a protobuf varint length prefix one byte at a
// time followed by that many bytes, mirroring parseDelimitedFrom.
func readVarintDelimited(r io.Reader) ([]byte, error) {
	var lenBuf []byte
	var b [1]byte
	for {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, err
		}
		lenBuf = append(lenBuf, b[0])
		if b[0]&0x80 == 0 {
			break
		}
		if len(lenBuf) > 10 {
			return nil, fmt.Errorf("datanode: varint length prefix too long")
		}
	}
	n, _ := protowire.ConsumeVarint(lenBuf)
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
