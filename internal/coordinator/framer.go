package coordinator

import (
	"encoding/binary"
	"strings"

	"github.com/valier-io/hdfs-client/dfserr"
	"github.com/valier-io/hdfs-client/internal/wire"
)

// rpcStatus mirrors RpcResponseHeaderProto's RpcStatusProto enum.
type rpcStatus uint64

const (
	statusSuccess rpcStatus = 0
	statusError   rpcStatus = 1
	statusFatal   rpcStatus = 2
)

// Call sends one request (protocolName/protocolVersion/methodName plus an
// already-encoded body) on conn and returns the raw bytes of the typed
// response body. The caller parses those bytes with the expected decoder.
//
// Encoding: len ‖ [rpc-header ‖ request-header ‖ body], each of the three
// inner messages length-delimited, and the outer len covering all three.
func Call(conn *Connection, identity Identity, protocolName string, protocolVersion uint64, methodName string, body []byte) ([]byte, error) {
	callID := conn.NextCallID()

	rpcHeader := wire.NewBuilder().
		Uint64(1, 0). // rpcKind = RPC_PROTOCOL_BUFFER
		Uint64(2, 0). // rpcOp = RPC_FINAL_PACKET
		SInt64(3, int64(callID)).
		Bytes_(4, identity.ClientID[:]).
		SInt64(5, 0). // retryCount
		Bytes()

	reqHeader := wire.NewBuilder().
		String(1, methodName).
		String(3, protocolName).
		Uint64(4, protocolVersion).
		Bytes()

	payload := appendDelimited(nil, rpcHeader)
	payload = appendDelimited(payload, reqHeader)
	payload = appendDelimited(payload, body)

	frame := make([]byte, 4, 4+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	frame = append(frame, payload...)

	if err := conn.Write(frame); err != nil {
		return nil, dfserr.Infrastructure(methodName, err)
	}

	respFrame, err := conn.ReadFrame()
	if err != nil {
		return nil, dfserr.Infrastructure(methodName, err)
	}

	return decodeResponse(methodName, respFrame)
}

// decodeResponse splits a response frame into its rpc-response-header and
// the remaining typed body bytes, failing with Infrastructure if the
// header reports non-success status.
func decodeResponse(methodName string, frame []byte) ([]byte, error) {
	headerLen, n := consumeVarintLen(frame)
	if n < 0 || headerLen < 0 || headerLen > len(frame)-n {
		return nil, dfserr.Infrastructuref(methodName, "malformed response envelope for %s", methodName)
	}
	headerBytes := frame[n : n+headerLen]
	body := frame[n+headerLen:]

	fields, err := wire.ParseFields(headerBytes)
	if err != nil {
		return nil, dfserr.Infrastructure(methodName, err)
	}

	statusField, ok := wire.First(fields, 2)
	if !ok {
		return nil, dfserr.Infrastructuref(methodName, "response header for %s is missing status", methodName)
	}
	if rpcStatus(statusField.Varint) != statusSuccess {
		var exceptionClass, errMsg string
		if f, ok := wire.First(fields, 4); ok {
			exceptionClass = string(f.Bytes)
		}
		if f, ok := wire.First(fields, 5); ok {
			errMsg = string(f.Bytes)
		}
		if strings.HasSuffix(exceptionClass, "FileNotFoundException") || strings.HasSuffix(exceptionClass, "PathNotFoundException") {
			return nil, dfserr.NotFound(errMsg)
		}
		return nil, dfserr.Infrastructuref(methodName, "coordinator returned %s: %s", exceptionClass, errMsg)
	}

	return body, nil
}

// consumeVarintLen reads a protobuf varint length prefix, mirroring how
// Java's parseDelimitedFrom reads the size before a delimited message.
func consumeVarintLen(buf []byte) (int, int) {
	var v uint64
	var shift uint
	for i := 0; i < len(buf); i++ {
		b := buf[i]
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return int(v), i + 1
		}
		shift += 7
		if shift >= 64 {
			return 0, -1
		}
	}
	return 0, -1
}

// DeriveMethodName derives an RPC method name from a request type's short
// Go name: strip a trailing "Request" and/or "Proto" and lowercase the
// first letter, e.g. "GetListingRequestProto" -> "getListing". The version
// request is the one documented exception, using the literal string
// "versionRequest".
func DeriveMethodName(requestTypeName string) string {
	if requestTypeName == "VersionRequestProto" || requestTypeName == "VersionRequest" {
		return "versionRequest"
	}
	name := requestTypeName
	name = strings.TrimSuffix(name, "Proto")
	name = strings.TrimSuffix(name, "Request")
	if name == "" {
		return name
	}
	return strings.ToLower(name[:1]) + name[1:]
}
