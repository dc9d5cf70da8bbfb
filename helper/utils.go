package helper

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	uuid "github.com/satori/go.uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewChunkID returns a fresh random chunk identifier in canonical UUID form.
func NewChunkID() string {
	return uuid.NewV4().String()
}

// IsChunkID reports whether id parses as a UUID.
func IsChunkID(id string) bool {
	_, err := uuid.FromString(id)
	return err == nil
}

// ShortID trims a chunk id to its first 8 characters for log lines.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// ValidChunkName reports whether id is safe to use as a file name inside a storage root.
func ValidChunkName(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`) && !strings.ContainsRune(id, 0)
}

// DerivedPort maps a node id to a datanode port using its last digit.
func DerivedPort(nodeID string) (int, bool) {
	if nodeID == "" {
		return 0, false
	}
	digit, err := strconv.Atoi(nodeID[len(nodeID)-1:])
	if err != nil {
		return 0, false
	}
	return DATANODE_BASE_PORT + digit, true
}

func TruncateOutput(bytestream []byte) string {
	if len(bytestream) <= 10 {
		return fmt.Sprintf("%q", bytestream)
	}
	return fmt.Sprintf("%q... and %d more bytes", bytestream[:10], len(bytestream)-10)
}

// RedirectLog sends the standard logger to path, appending and rotating at
// LOG_MAX_MB. The caller closes the returned writer.
func RedirectLog(path string) (io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	logfile := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    LOG_MAX_MB,
		MaxBackups: 3,
		Compress:   true,
	}
	log.SetOutput(logfile)
	return logfile, nil
}
