// Package hdfsclient is a self-contained client for a Hadoop-HDFS-lineage
// distributed file system: it speaks the coordinator metadata RPC and the
// storage-node data-transfer protocol directly, without depending on the
// reference implementation's runtime.
package hdfsclient

import (
	"time"

	"github.com/valier-io/hdfs-client/internal/coordinator"
)

// FileKind enumerates the kinds of entry the coordinator can report.
type FileKind int

const (
	File FileKind = iota
	Directory
	Symlink
)

// ReplicaEndpoint names one storage node holding a replica of a block.
type ReplicaEndpoint struct {
	Host         string
	UUID         string
	TopologyPath string
}

// BlockLocation is the public, coordinator-independent view of one file
// block and its replica set.
type BlockLocation struct {
	Offset          uint64
	Length          uint64
	PoolID          string
	BlockID         uint64
	GenerationStamp uint64
	Replicas        []ReplicaEndpoint
}

// FileSummary is the public, immutable metadata record returned by List,
// ReadAttributes, CreateDirectory, and CreateDirectories.
type FileSummary struct {
	Kind             FileKind
	Name             string
	Path             string
	Length           uint64
	Permissions      uint32
	Owner            string
	Group            string
	ModificationTime time.Time
	AccessTime       time.Time
	SymlinkTarget    string
	HasSymlinkTarget bool
	Replication      uint32
	BlockSize        uint64
	FileID           uint64
	ChildrenCount    int32
	StoragePolicy    uint32
	Flags            uint32
	Namespace        string
	HasNamespace     bool
	Blocks           []BlockLocation
}

func (f FileSummary) IsDirectory() bool { return f.Kind == Directory }
func (f FileSummary) IsFile() bool      { return f.Kind == File }

// ServerInfo is the public view of the coordinator's build/version info.
type ServerInfo struct {
	BuildVersion    string
	BlockPoolID     string
	SoftwareVersion string
	Capabilities    uint64
}

// HasCapability reports whether bit is set in the server's capability
// bitmask.
func (s ServerInfo) HasCapability(bit uint) bool {
	return s.Capabilities&(1<<bit) != 0
}

// convertFileStatus translates the coordinator package's internal
// FileStatus into the public FileSummary, mirroring the reference client's
// convertToHdfsFileSummary-style boundary conversion.
func convertFileStatus(fs coordinator.FileStatus) FileSummary {
	blocks := make([]BlockLocation, 0, len(fs.Blocks))
	for _, b := range fs.Blocks {
		blocks = append(blocks, convertBlockLocation(b))
	}
	var kind FileKind
	switch fs.Type {
	case coordinator.Directory:
		kind = Directory
	case coordinator.Symlink:
		kind = Symlink
	default:
		kind = File
	}
	return FileSummary{
		Kind:             kind,
		Name:             fs.Name,
		Path:             fs.Path,
		Length:           fs.Length,
		Permissions:      fs.Permissions,
		Owner:            fs.Owner,
		Group:            fs.Group,
		ModificationTime: fs.ModificationTime,
		AccessTime:       fs.AccessTime,
		SymlinkTarget:    fs.SymlinkTarget,
		HasSymlinkTarget: fs.HasSymlinkTarget,
		Replication:      fs.Replication,
		BlockSize:        fs.BlockSize,
		FileID:           fs.FileID,
		ChildrenCount:    fs.ChildrenCount,
		StoragePolicy:    fs.StoragePolicy,
		Flags:            fs.Flags,
		Namespace:        fs.Namespace,
		HasNamespace:     fs.HasNamespace,
		Blocks:           blocks,
	}
}

func convertBlockLocation(b coordinator.BlockLocation) BlockLocation {
	replicas := make([]ReplicaEndpoint, 0, len(b.Replicas))
	for _, r := range b.Replicas {
		replicas = append(replicas, ReplicaEndpoint{Host: r.HostName, UUID: r.UUID, TopologyPath: r.TopologyPath})
	}
	return BlockLocation{
		Offset:          b.Offset,
		Length:          b.Length,
		PoolID:          b.PoolID,
		BlockID:         b.BlockID,
		GenerationStamp: b.GenerationStamp,
		Replicas:        replicas,
	}
}

func convertServerInfo(s coordinator.ServerInfo) ServerInfo {
	return ServerInfo{
		BuildVersion:    s.BuildVersion,
		BlockPoolID:     s.BlockPoolID,
		SoftwareVersion: s.SoftwareVersion,
		Capabilities:    s.Capabilities,
	}
}
