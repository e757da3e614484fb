package hdfsclient

import (
	"fmt"
	"os"
	"time"

	"github.com/c2h5oh/datasize"
	"gopkg.in/yaml.v2"

	"github.com/valier-io/hdfs-client/internal/coordinator"
	"github.com/valier-io/hdfs-client/internal/datanode"
)

// Config is the on-disk (YAML) configuration for a Client: coordinator
// endpoints, identity, timeouts, and defaults for newly created files.
type Config struct {
	// CoordinatorEndpoints are tried in order on every metadata operation,
	// each written as "dfs://host:port".
	CoordinatorEndpoints []string `yaml:"coordinatorEndpoints"`

	EffectiveUser string `yaml:"effectiveUser"`
	RealUser      string `yaml:"realUser"`
	ClientName    string `yaml:"clientName"`

	// BlockSize and ReplicationFactor are applied to every file that
	// CopyFromSource creates. BlockSize accepts human sizes like "128MB"
	// via c2h5oh/datasize.
	BlockSize         datasize.ByteSize `yaml:"blockSize"`
	ReplicationFactor uint32            `yaml:"replicationFactor"`

	CoordinatorConnectTimeout time.Duration `yaml:"coordinatorConnectTimeout"`
	CoordinatorReadTimeout    time.Duration `yaml:"coordinatorReadTimeout"`
	DatanodeConnectTimeout    time.Duration `yaml:"datanodeConnectTimeout"`
	DatanodeReadTimeout       time.Duration `yaml:"datanodeReadTimeout"`

	// LocalMode rewrites every replica hostname reported by the
	// coordinator to "localhost" before dialing it — useful when the
	// cluster's internal hostnames aren't reachable from the client but a
	// tunnel/port-forward to each node's data port is.
	LocalMode bool `yaml:"localMode"`

	// WorkerPoolSize bounds how many file-level transfers the bulk
	// transfer manager (§4.9) runs concurrently.
	WorkerPoolSize int `yaml:"workerPoolSize"`
}

// defaultBlockSize, defaultReplicationFactor, and defaultWorkerPoolSize
// match the reference server's own defaults, per §6.
const (
	defaultBlockSize         = 128 * datasize.MB
	defaultReplicationFactor = 3
	defaultWorkerPoolSize    = 4
)

func (c Config) withDefaults() Config {
	if c.BlockSize == 0 {
		c.BlockSize = defaultBlockSize
	}
	if c.ReplicationFactor == 0 {
		c.ReplicationFactor = defaultReplicationFactor
	}
	if c.ClientName == "" {
		c.ClientName = "hdfs-client"
	}
	if c.WorkerPoolSize == 0 {
		c.WorkerPoolSize = defaultWorkerPoolSize
	}
	return c
}

// LoadConfig reads and parses a YAML configuration file.
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("hdfsclient: opening config %s: %w", path, err)
	}
	defer f.Close()

	var c Config
	if err := yaml.NewDecoder(f).Decode(&c); err != nil {
		return Config{}, fmt.Errorf("hdfsclient: parsing config %s: %w", path, err)
	}
	return c.withDefaults(), nil
}

func (c Config) coordinatorConnectOptions() coordinator.ConnectOptions {
	var identity coordinator.Identity
	copy(identity.ClientID[:], newClientID())
	identity.ClientName = c.ClientName
	return coordinator.ConnectOptions{
		ConnectTimeout: c.CoordinatorConnectTimeout,
		ReadTimeout:    c.CoordinatorReadTimeout,
		Identity:       identity,
		User: coordinator.UserInformation{
			EffectiveUser: c.EffectiveUser,
			RealUser:      c.RealUser,
		},
	}
}

func (c Config) datanodeConnectOptions() datanode.ConnectOptions {
	return datanode.ConnectOptions{
		ConnectTimeout: c.DatanodeConnectTimeout,
		ReadTimeout:    c.DatanodeReadTimeout,
	}
}
