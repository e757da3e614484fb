package coordinator

import (
	"time"

	"github.com/valier-io/hdfs-client/internal/wire"
)

// This file builds and parses the protobuf message bodies carried by each
// coordinator RPC. Field numbers mirror the reference server's generated
// ClientNamenodeProtocolProtos / HdfsProtos / HdfsServerProtos definitions,
// reproduced here without a code generator (see internal/wire).

// ---- getListing ----

func encodeGetListingRequest(src string) []byte {
	return wire.NewBuilder().
		String(1, src).
		Bytes_(2, nil). // startAfter = ""
		Bool(3, true).  // needLocation
		Bytes()
}

func decodeGetListingResponse(body []byte) ([]FileStatus, error) {
	fields, err := wire.ParseFields(body)
	if err != nil {
		return nil, err
	}
	dirListField, ok := wire.First(fields, 1)
	if !ok {
		return nil, nil
	}
	dirFields, err := wire.ParseFields(dirListField.Bytes)
	if err != nil {
		return nil, err
	}
	var out []FileStatus
	for _, entry := range wire.All(dirFields, 1) {
		fs, err := decodeFileStatus(entry.Bytes)
		if err != nil {
			return nil, err
		}
		out = append(out, fs)
	}
	return out, nil
}

// ---- getFileInfo / getLocatedFileInfo ----

func encodeGetFileInfoRequest(src string) []byte {
	return wire.NewBuilder().String(1, src).Bytes()
}

func encodeGetLocatedFileInfoRequest(src string) []byte {
	return wire.NewBuilder().String(1, src).Bool(2, false).Bytes()
}

func decodeFileInfoResponse(body []byte) (*FileStatus, error) {
	fields, err := wire.ParseFields(body)
	if err != nil {
		return nil, err
	}
	f, ok := wire.First(fields, 1)
	if !ok {
		return nil, nil
	}
	fs, err := decodeFileStatus(f.Bytes)
	if err != nil {
		return nil, err
	}
	return &fs, nil
}

// ---- mkdirs ----

func encodeMkdirsRequest(src string, createParent bool) []byte {
	perm := wire.NewBuilder().Uint64(1, 0755).Bytes()
	return wire.NewBuilder().
		String(1, src).
		Message(2, perm).
		Bool(3, createParent).
		Bytes()
}

func decodeMkdirsResponse(body []byte) (bool, error) {
	fields, err := wire.ParseFields(body)
	if err != nil {
		return false, err
	}
	f, _ := wire.First(fields, 1)
	return f.Varint != 0, nil
}

// ---- create ----

func encodeCreateRequest(src, clientName string, createParent bool, replication uint32, blockSize uint64) []byte {
	perm := wire.NewBuilder().Uint64(1, 0644).Bytes()
	return wire.NewBuilder().
		String(1, src).
		Message(2, perm).
		String(3, clientName).
		Uint64(4, 1). // createFlag = CREATE
		Bool(5, createParent).
		Uint64(6, uint64(replication)).
		Uint64(7, blockSize).
		Bytes()
}

func decodeCreateResponse(body []byte) (*FileStatus, error) {
	fields, err := wire.ParseFields(body)
	if err != nil {
		return nil, err
	}
	f, ok := wire.First(fields, 1)
	if !ok {
		return nil, nil
	}
	fs, err := decodeFileStatus(f.Bytes)
	if err != nil {
		return nil, err
	}
	return &fs, nil
}

// ---- addBlock ----

func encodeAddBlockRequest(src, clientName string, fileID uint64, previous *BlockLocation) []byte {
	b := wire.NewBuilder().
		String(1, src).
		String(2, clientName)
	if previous != nil {
		b.Message(3, encodeExtendedBlock(previous.PoolID, previous.BlockID, previous.GenerationStamp, previous.Length))
	}
	b.Uint64(5, fileID)
	return b.Bytes()
}

func decodeAddBlockResponse(body []byte) (BlockLocation, error) {
	fields, err := wire.ParseFields(body)
	if err != nil {
		return BlockLocation{}, err
	}
	f, ok := wire.First(fields, 1)
	if !ok {
		return BlockLocation{}, nil
	}
	return decodeLocatedBlock(f.Bytes)
}

// ---- complete ----

func encodeCompleteRequest(src, clientName string, fileID uint64, last *BlockLocation) []byte {
	b := wire.NewBuilder().
		String(1, src).
		String(2, clientName)
	if last != nil {
		b.Message(3, encodeExtendedBlock(last.PoolID, last.BlockID, last.GenerationStamp, last.Length))
	}
	b.Uint64(4, fileID)
	return b.Bytes()
}

func decodeCompleteResponse(body []byte) (bool, error) {
	fields, err := wire.ParseFields(body)
	if err != nil {
		return false, err
	}
	f, _ := wire.First(fields, 1)
	return f.Varint != 0, nil
}

// ---- delete ----

func encodeDeleteRequest(src string, recursive bool) []byte {
	return wire.NewBuilder().String(1, src).Bool(2, recursive).Bytes()
}

func decodeDeleteResponse(body []byte) (bool, error) {
	fields, err := wire.ParseFields(body)
	if err != nil {
		return false, err
	}
	f, _ := wire.First(fields, 1)
	return f.Varint != 0, nil
}

// ---- versionRequest ----

func encodeVersionRequest() []byte {
	return nil
}

func decodeVersionResponse(body []byte) (ServerInfo, error) {
	fields, err := wire.ParseFields(body)
	if err != nil {
		return ServerInfo{}, err
	}
	infoField, ok := wire.First(fields, 1)
	if !ok {
		return ServerInfo{}, nil
	}
	infoFields, err := wire.ParseFields(infoField.Bytes)
	if err != nil {
		return ServerInfo{}, err
	}
	var info ServerInfo
	if f, ok := wire.First(infoFields, 1); ok {
		info.BuildVersion = string(f.Bytes)
	}
	if f, ok := wire.First(infoFields, 3); ok {
		info.BlockPoolID = string(f.Bytes)
	}
	if f, ok := wire.First(infoFields, 5); ok {
		info.SoftwareVersion = string(f.Bytes)
	}
	if f, ok := wire.First(infoFields, 6); ok {
		info.Capabilities = f.Varint
	}
	return info, nil
}

// ---- shared submessages ----

func encodeExtendedBlock(poolID string, blockID, generationStamp, numBytes uint64) []byte {
	return wire.NewBuilder().
		String(1, poolID).
		Uint64(2, blockID).
		Uint64(3, generationStamp).
		Uint64(4, numBytes).
		Bytes()
}

func decodeExtendedBlock(buf []byte) (poolID string, blockID, generationStamp, numBytes uint64, err error) {
	fields, err := wire.ParseFields(buf)
	if err != nil {
		return "", 0, 0, 0, err
	}
	if f, ok := wire.First(fields, 1); ok {
		poolID = string(f.Bytes)
	}
	if f, ok := wire.First(fields, 2); ok {
		blockID = f.Varint
	}
	if f, ok := wire.First(fields, 3); ok {
		generationStamp = f.Varint
	}
	if f, ok := wire.First(fields, 4); ok {
		numBytes = f.Varint
	}
	return poolID, blockID, generationStamp, numBytes, nil
}

func decodeDatanodeInfo(buf []byte) (DatanodeEndpoint, error) {
	fields, err := wire.ParseFields(buf)
	if err != nil {
		return DatanodeEndpoint{}, err
	}
	var ep DatanodeEndpoint
	if idField, ok := wire.First(fields, 1); ok {
		idFields, err := wire.ParseFields(idField.Bytes)
		if err != nil {
			return DatanodeEndpoint{}, err
		}
		if f, ok := wire.First(idFields, 2); ok {
			ep.HostName = string(f.Bytes)
		}
		if f, ok := wire.First(idFields, 3); ok {
			ep.UUID = string(f.Bytes)
		}
	}
	if f, ok := wire.First(fields, 6); ok {
		ep.TopologyPath = string(f.Bytes)
	}
	return ep, nil
}

func decodeLocatedBlock(buf []byte) (BlockLocation, error) {
	fields, err := wire.ParseFields(buf)
	if err != nil {
		return BlockLocation{}, err
	}
	var bl BlockLocation
	if f, ok := wire.First(fields, 1); ok {
		poolID, blockID, gen, numBytes, err := decodeExtendedBlock(f.Bytes)
		if err != nil {
			return BlockLocation{}, err
		}
		bl.PoolID, bl.BlockID, bl.GenerationStamp, bl.Length = poolID, blockID, gen, numBytes
	}
	if f, ok := wire.First(fields, 2); ok {
		bl.Offset = f.Varint
	}
	for _, locField := range wire.All(fields, 3) {
		ep, err := decodeDatanodeInfo(locField.Bytes)
		if err != nil {
			return BlockLocation{}, err
		}
		bl.Replicas = append(bl.Replicas, ep)
	}
	return bl, nil
}

func decodeFileStatus(buf []byte) (FileStatus, error) {
	fields, err := wire.ParseFields(buf)
	if err != nil {
		return FileStatus{}, err
	}
	var fs FileStatus
	if f, ok := wire.First(fields, 1); ok {
		switch f.Varint {
		case 1:
			fs.Type = Directory
		case 3:
			fs.Type = Symlink
		default:
			fs.Type = File
		}
	}
	if f, ok := wire.First(fields, 2); ok {
		fs.Path = string(f.Bytes)
	}
	if f, ok := wire.First(fields, 3); ok {
		fs.Length = f.Varint
	}
	if f, ok := wire.First(fields, 4); ok {
		permFields, err := wire.ParseFields(f.Bytes)
		if err == nil {
			if pf, ok := wire.First(permFields, 1); ok {
				fs.Permissions = uint32(pf.Varint)
			}
		}
	}
	if f, ok := wire.First(fields, 5); ok {
		fs.Owner = string(f.Bytes)
	}
	if f, ok := wire.First(fields, 6); ok {
		fs.Group = string(f.Bytes)
	}
	if f, ok := wire.First(fields, 7); ok {
		fs.ModificationTime = time.UnixMilli(int64(f.Varint))
	}
	if f, ok := wire.First(fields, 8); ok {
		fs.AccessTime = time.UnixMilli(int64(f.Varint))
	}
	if f, ok := wire.First(fields, 9); ok {
		fs.SymlinkTarget = string(f.Bytes)
		fs.HasSymlinkTarget = true
	}
	if f, ok := wire.First(fields, 10); ok {
		fs.Replication = uint32(f.Varint)
	}
	if f, ok := wire.First(fields, 11); ok {
		fs.BlockSize = f.Varint
	}
	if f, ok := wire.First(fields, 12); ok {
		locsFields, err := wire.ParseFields(f.Bytes)
		if err != nil {
			return FileStatus{}, err
		}
		for _, blkField := range wire.All(locsFields, 2) {
			bl, err := decodeLocatedBlock(blkField.Bytes)
			if err != nil {
				return FileStatus{}, err
			}
			fs.Blocks = append(fs.Blocks, bl)
		}
	}
	if f, ok := wire.First(fields, 13); ok {
		fs.FileID = f.Varint
	}
	if f, ok := wire.First(fields, 14); ok {
		fs.ChildrenCount = int32(f.Varint)
	}
	if f, ok := wire.First(fields, 16); ok {
		fs.StoragePolicy = uint32(f.Varint)
	}
	if f, ok := wire.First(fields, 19); ok {
		fs.Flags = uint32(f.Varint)
	}
	if f, ok := wire.First(fields, 20); ok {
		fs.Namespace = string(f.Bytes)
		fs.HasNamespace = true
	}
	name := fs.Path
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '/' {
			name = name[i+1:]
			break
		}
	}
	fs.Name = name
	return fs, nil
}
