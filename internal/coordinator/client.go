// Package coordinator implements the metadata RPC client: connection
// handshake and framing (C3/C4) plus the eight coordinator operations
// (C5) — list, stat, mkdir, create, addBlock, complete, delete, and
// getVersion.
package coordinator

import (
	"fmt"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/valier-io/hdfs-client/dfserr"
	"github.com/valier-io/hdfs-client/internal/wire"
)

// Client fans metadata operations out over a fixed, ordered list of
// coordinator endpoints: each operation tries them in order, short-circuits
// immediately on NotFound, and otherwise advances to the next endpoint,
// wrapping the last failure as Infrastructure if all are exhausted.
type Client struct {
	endpoints []Endpoint
	opts      ConnectOptions

	mu sync.Mutex
	// endpointHint remembers, per operation name, which endpoint index
	// last succeeded, so the next call of the same kind tries it first.
	// This never changes retry correctness — every endpoint is still
	// tried in order starting from the hint — it only improves the
	// common case where one endpoint is consistently reachable.
	endpointHint *cache.Cache
}

func NewClient(endpoints []Endpoint, opts ConnectOptions) *Client {
	return &Client{
		endpoints:    endpoints,
		opts:         opts,
		endpointHint: cache.New(30*time.Second, time.Minute),
	}
}

// withEndpoints calls fn against each configured endpoint, starting from
// the cached hint for op, until one succeeds. A NotFoundError is returned
// immediately without trying further endpoints, per §4.5.
func (c *Client) withEndpoints(op string, fn func(*Connection) (interface{}, error)) (interface{}, error) {
	if len(c.endpoints) == 0 {
		return nil, dfserr.Infrastructuref(op, "no coordinator endpoints configured")
	}

	order := c.endpointOrder(op)

	var lastErr error
	for _, idx := range order {
		ep := c.endpoints[idx]
		result, err := c.callOnce(ep, fn)
		if err == nil {
			c.rememberHint(op, idx)
			return result, nil
		}
		if _, ok := err.(*dfserr.NotFoundError); ok {
			return nil, err
		}
		logrus.WithFields(logrus.Fields{"op": op, "endpoint": ep.String()}).WithError(err).
			Warn("coordinator operation failed, trying next endpoint")
		lastErr = err
	}
	return nil, dfserr.Infrastructure(op, lastErr)
}

func (c *Client) callOnce(ep Endpoint, fn func(*Connection) (interface{}, error)) (interface{}, error) {
	conn, err := Dial(ep, ClientProtocolName, c.opts)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return fn(conn)
}

func (c *Client) endpointOrder(op string) []int {
	order := make([]int, len(c.endpoints))
	for i := range order {
		order[i] = i
	}
	if hintI, ok := c.endpointHint.Get(op); ok {
		hint := hintI.(int)
		if hint > 0 && hint < len(order) {
			// Move the hinted index to the front, preserving the
			// relative order of the rest.
			reordered := make([]int, 0, len(order))
			reordered = append(reordered, hint)
			for _, i := range order {
				if i != hint {
					reordered = append(reordered, i)
				}
			}
			return reordered
		}
	}
	return order
}

func (c *Client) rememberHint(op string, idx int) {
	c.endpointHint.SetDefault(op, idx)
}

// GetVersion fetches the coordinator's build/version info over the
// coordinator-internal protocol.
func (c *Client) GetVersion() (ServerInfo, error) {
	resI, err := c.withEndpoints("getVersion", func(conn *Connection) (interface{}, error) {
		body, err := Call(conn, c.opts.Identity, InternalProtocolName, InternalProtocolVersion, "versionRequest", encodeVersionRequest())
		if err != nil {
			return nil, err
		}
		return decodeVersionResponse(body)
	})
	if err != nil {
		return ServerInfo{}, err
	}
	return resI.(ServerInfo), nil
}

// List returns the first page of directory entries under path, truncated
// at the coordinator's default page size (~1000 entries). A response that
// carries no directory listing is reported as a NotFoundError.
func (c *Client) List(path string) ([]FileStatus, error) {
	resI, err := c.withEndpoints("getListing", func(conn *Connection) (interface{}, error) {
		body, err := c.call(conn, "getListing", encodeGetListingRequest(path))
		if err != nil {
			return nil, err
		}
		fields, err := wire.ParseFields(body)
		if err != nil {
			return nil, err
		}
		if _, ok := wire.First(fields, 1); !ok {
			return nil, dfserr.NotFound(path)
		}
		return decodeGetListingResponse(body)
	})
	if err != nil {
		return nil, err
	}
	if resI == nil {
		return nil, nil
	}
	return resI.([]FileStatus), nil
}

// Stat returns the file status at path, or nil if it does not exist
// (a semantic not-found, not an error — see §4.5).
func (c *Client) Stat(path string) (*FileStatus, error) {
	resI, err := c.withEndpoints("getLocatedFileInfo", func(conn *Connection) (interface{}, error) {
		body, err := c.call(conn, "getLocatedFileInfo", encodeGetLocatedFileInfoRequest(path))
		if err != nil {
			return nil, err
		}
		return decodeFileInfoResponse(body)
	})
	if err != nil {
		return nil, err
	}
	if resI == nil {
		return nil, nil
	}
	return resI.(*FileStatus), nil
}

// Mkdir creates a directory at path, optionally creating parents, and
// returns the created directory's metadata.
func (c *Client) Mkdir(path string, createParents bool) (*FileStatus, error) {
	resI, err := c.withEndpoints("mkdirs", func(conn *Connection) (interface{}, error) {
		body, err := c.call(conn, "mkdirs", encodeMkdirsRequest(path, createParents))
		if err != nil {
			return nil, err
		}
		ok, err := decodeMkdirsResponse(body)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("mkdirs did not succeed for %s", path)
		}
		// The mkdirs RPC does not return the created directory's
		// metadata, so fetch it with a follow-up call on the same
		// connection.
		infoBody, err := c.call(conn, "getFileInfo", encodeGetFileInfoRequest(path))
		if err != nil {
			return nil, err
		}
		fs, err := decodeFileInfoResponse(infoBody)
		if err != nil {
			return nil, err
		}
		if fs == nil {
			return nil, fmt.Errorf("created directory %s not found on follow-up getFileInfo", path)
		}
		return fs, nil
	})
	if err != nil {
		return nil, err
	}
	return resI.(*FileStatus), nil
}

// Create allocates a new file entry at path with no blocks yet.
func (c *Client) Create(path string, createParent bool, replication uint32, blockSize uint64) (*FileStatus, error) {
	resI, err := c.withEndpoints("create", func(conn *Connection) (interface{}, error) {
		body, err := c.call(conn, "create", encodeCreateRequest(path, c.opts.Identity.ClientName, createParent, replication, blockSize))
		if err != nil {
			return nil, err
		}
		fs, err := decodeCreateResponse(body)
		if err != nil {
			return nil, err
		}
		if fs == nil {
			return nil, fmt.Errorf("create did not return a file status for %s", path)
		}
		return fs, nil
	})
	if err != nil {
		return nil, err
	}
	return resI.(*FileStatus), nil
}

// AddBlock closes the last block of file (if any, reporting its
// actual length) and allocates the next one, returning the newly
// allocated block.
func (c *Client) AddBlock(path string, fileID uint64, previous *BlockLocation) (BlockLocation, error) {
	resI, err := c.withEndpoints("addBlock", func(conn *Connection) (interface{}, error) {
		body, err := c.call(conn, "addBlock", encodeAddBlockRequest(path, c.opts.Identity.ClientName, fileID, previous))
		if err != nil {
			return nil, err
		}
		return decodeAddBlockResponse(body)
	})
	if err != nil {
		return BlockLocation{}, err
	}
	return resI.(BlockLocation), nil
}

// Complete marks the file as fully written, supplying the authoritative
// length of the last block.
func (c *Client) Complete(path string, fileID uint64, last *BlockLocation) (bool, error) {
	resI, err := c.withEndpoints("complete", func(conn *Connection) (interface{}, error) {
		body, err := c.call(conn, "complete", encodeCompleteRequest(path, c.opts.Identity.ClientName, fileID, last))
		if err != nil {
			return nil, err
		}
		return decodeCompleteResponse(body)
	})
	if err != nil {
		return false, err
	}
	return resI.(bool), nil
}

// Delete removes path non-recursively: fails if a directory is non-empty.
func (c *Client) Delete(path string) (bool, error) {
	resI, err := c.withEndpoints("delete", func(conn *Connection) (interface{}, error) {
		body, err := c.call(conn, "delete", encodeDeleteRequest(path, false))
		if err != nil {
			return nil, err
		}
		return decodeDeleteResponse(body)
	})
	if err != nil {
		return false, err
	}
	return resI.(bool), nil
}

// call is a thin wrapper that always uses the client protocol, since every
// operation besides GetVersion goes over it (§4.4 "Protocol dispatch").
func (c *Client) call(conn *Connection, methodName string, body []byte) ([]byte, error) {
	return Call(conn, c.opts.Identity, ClientProtocolName, ClientProtocolVersion, methodName, body)
}
