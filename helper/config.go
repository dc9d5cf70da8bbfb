package helper

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"
)

// NodeConfig describes one member of the fixed replica set.
type NodeConfig struct {
	ID   string `json:"id"`
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Configuration for the namenode. Durations are in seconds.
type MasterConfig struct {
	ChunkSize        int          `json:"chunkSize"`
	HeartbeatPort    int          `json:"heartbeatPort"`
	HeartbeatTimeout int          `json:"heartbeatTimeout"`
	SnapshotInterval int          `json:"snapshotInterval"`
	DialTimeout      int          `json:"dialTimeout"`
	MetadataFile     string       `json:"metadataFile"`
	HTTPAddress      string       `json:"httpAddress"`
	Replicas         []NodeConfig `json:"replicas"`
}

// Configuration for a datanode. HeartbeatInterval is in seconds.
type ChunkServerConfig struct {
	NodeID            string `json:"nodeID"`
	Port              int    `json:"port"`
	StorageRoot       string `json:"storageRoot"`
	MasterHost        string `json:"masterHost"`
	MasterPort        int    `json:"masterPort"`
	HeartbeatInterval int    `json:"heartbeatInterval"`
}

func DefaultMasterConfig() MasterConfig {
	return MasterConfig{
		ChunkSize:        CHUNK_SIZE,
		HeartbeatPort:    HEARTBEAT_PORT,
		HeartbeatTimeout: int(HEARTBEAT_TIMEOUT / time.Second),
		SnapshotInterval: int(SNAPSHOT_INTERVAL / time.Second),
		DialTimeout:      int(DIAL_TIMEOUT / time.Second),
		MetadataFile:     METADATA_FILE,
		HTTPAddress:      HTTP_ADDR,
		Replicas: []NodeConfig{
			{ID: "0", Host: "localhost", Port: DATANODE_BASE_PORT},
			{ID: "1", Host: "localhost", Port: DATANODE_BASE_PORT + 1},
		},
	}
}

func DefaultChunkServerConfig() ChunkServerConfig {
	return ChunkServerConfig{
		NodeID:            "0",
		Port:              DATANODE_BASE_PORT,
		StorageRoot:       "storage/d0",
		MasterHost:        "127.0.0.1",
		MasterPort:        HEARTBEAT_PORT,
		HeartbeatInterval: int(HEARTBEAT_INTERVAL / time.Second),
	}
}

// LoadMasterConfig overlays the YAML file at path onto the defaults.
// An empty path yields the defaults.
func LoadMasterConfig(path string) (MasterConfig, error) {
	cfg := DefaultMasterConfig()
	if err := loadYAML(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func LoadChunkServerConfig(path string) (ChunkServerConfig, error) {
	cfg := DefaultChunkServerConfig()
	if err := loadYAML(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func loadYAML(path string, out interface{}) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "reading config %s", path)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return errors.Wrapf(err, "parsing config %s", path)
	}
	return nil
}

func (c MasterConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "chunk size %d", c.ChunkSize)
	}
	if c.HeartbeatTimeout <= 0 || c.SnapshotInterval <= 0 || c.DialTimeout <= 0 {
		return errors.Wrap(ErrInvalidConfig, "intervals and timeouts must be positive")
	}
	if len(c.Replicas) == 0 {
		return errors.Wrap(ErrInvalidConfig, "no replicas configured")
	}
	seen := make(map[string]bool)
	for _, r := range c.Replicas {
		if r.ID == "" {
			return errors.Wrap(ErrInvalidConfig, "replica with empty id")
		}
		if seen[r.ID] {
			return errors.Wrapf(ErrInvalidConfig, "duplicate replica id %q", r.ID)
		}
		seen[r.ID] = true
	}
	return nil
}

func (c ChunkServerConfig) Validate() error {
	if c.NodeID == "" {
		return errors.Wrap(ErrInvalidConfig, "node id is required")
	}
	if c.StorageRoot == "" {
		return errors.Wrap(ErrInvalidConfig, "storage root is required")
	}
	if c.HeartbeatInterval <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "heartbeat interval %d", c.HeartbeatInterval)
	}
	return nil
}

func (c MasterConfig) HeartbeatTimeoutDuration() time.Duration {
	return time.Duration(c.HeartbeatTimeout) * time.Second
}

func (c MasterConfig) SnapshotIntervalDuration() time.Duration {
	return time.Duration(c.SnapshotInterval) * time.Second
}

func (c MasterConfig) DialTimeoutDuration() time.Duration {
	return time.Duration(c.DialTimeout) * time.Second
}

func (c ChunkServerConfig) HeartbeatIntervalDuration() time.Duration {
	return time.Duration(c.HeartbeatInterval) * time.Second
}
