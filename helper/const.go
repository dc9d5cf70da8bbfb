package helper

import (
	"errors"
	"time"
)

const (
	CHUNK_SIZE = 2 * 1024 * 1024

	HEARTBEAT_PORT     = 6000
	DATANODE_BASE_PORT = 7001
	HTTP_ADDR          = ":5000"

	HEARTBEAT_INTERVAL = 5 * time.Second
	HEARTBEAT_TIMEOUT  = 10 * time.Second
	SNAPSHOT_INTERVAL  = 5 * time.Second
	DIAL_TIMEOUT       = 30 * time.Second

	METADATA_FILE = "metadata.json"
	LOG_MAX_MB    = 100

	// upper bound on a single heartbeat message
	HEARTBEAT_MAX_BYTES = 4096
	MAX_UPLOAD_BYTES    = 512 * 1024 * 1024
)

var (
	ErrFileNotFound       = errors.New("[ERROR] File not found")
	ErrMissingChunk       = errors.New("[ERROR] Missing chunk")
	ErrChunkNotFound      = errors.New("[ERROR] Chunk not found")
	ErrUnknownNode        = errors.New("[ERROR] Unknown datanode")
	ErrInvalidChunkID     = errors.New("[ERROR] Invalid chunk id")
	ErrUnknownCommand     = errors.New("[ERROR] Unknown command")
	ErrMalformedHeartbeat = errors.New("[ERROR] Malformed heartbeat")
	ErrFrameTooLarge      = errors.New("[ERROR] Frame length exceeds limit")
	ErrInvalidConfig      = errors.New("[ERROR] Invalid configuration")
)
