package chunkserver

import (
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/theritikchoure/logx"

	"github.com/mini_hdfs_project/helper"
	"github.com/mini_hdfs_project/wire"
)

// ChunkServer stores chunk blobs as files named by chunk id under StorageRoot and
// answers STORE / RETRIEVE frames, one goroutine per connection.
type ChunkServer struct {
	NodeID      string
	PortNum     int
	StorageRoot string
	// bounds a whole exchange on an accepted connection
	IOTimeout time.Duration

	mu       sync.Mutex
	listener net.Listener
	closed   bool
	conns    sync.WaitGroup
}

func NewChunkServer(cfg helper.ChunkServerConfig) *ChunkServer {
	return &ChunkServer{
		NodeID:      cfg.NodeID,
		PortNum:     cfg.Port,
		StorageRoot: cfg.StorageRoot,
		IOTimeout:   helper.DIAL_TIMEOUT,
	}
}

/* =============================== Chunk Storage functions =============================== */

func (cs *ChunkServer) chunkPath(chunkID string) string {
	return filepath.Join(cs.StorageRoot, chunkID)
}

// StoreChunk writes data under chunkID, replacing any previous blob with that id.
func (cs *ChunkServer) StoreChunk(chunkID string, data []byte) error {
	if !helper.ValidChunkName(chunkID) {
		return errors.Wrapf(helper.ErrInvalidChunkID, "%q", chunkID)
	}
	if err := os.MkdirAll(cs.StorageRoot, 0755); err != nil {
		return errors.Wrap(err, "creating storage root")
	}

	tmp, err := os.CreateTemp(cs.StorageRoot, "."+chunkID+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "creating temp chunk")
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrap(err, "writing chunk")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "closing chunk")
	}
	// rename keeps racing writers of the same id whole: the last rename wins
	if err := os.Rename(tmp.Name(), cs.chunkPath(chunkID)); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "committing chunk")
	}
	return nil
}

// ReadChunk returns the blob stored under chunkID, or helper.ErrChunkNotFound.
func (cs *ChunkServer) ReadChunk(chunkID string) ([]byte, error) {
	if !helper.ValidChunkName(chunkID) {
		return nil, errors.Wrapf(helper.ErrInvalidChunkID, "%q", chunkID)
	}
	data, err := os.ReadFile(cs.chunkPath(chunkID))
	if os.IsNotExist(err) {
		return nil, helper.ErrChunkNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading chunk")
	}
	return data, nil
}

/* ============================ ChunkServer functions ============================ */

func (cs *ChunkServer) logf(format string, args ...interface{}) {
	log.Printf("[Datanode %s] %s", cs.NodeID, fmt.Sprintf(format, args...))
}

// handleConn runs one exchange: read a frame, dispatch it, write the response, close.
// Any fault closes the connection without a response.
func (cs *ChunkServer) handleConn(conn net.Conn) {
	defer cs.conns.Done()
	defer conn.Close()

	if cs.IOTimeout > 0 {
		conn.SetDeadline(time.Now().Add(cs.IOTimeout))
	}

	header, payload, err := wire.ReadFrame(conn)
	if err != nil {
		cs.logf("Error reading request from %s: %v", conn.RemoteAddr(), err)
		return
	}

	var reply wire.Header
	var body []byte
	switch header.Cmd {
	case wire.CmdStore:
		cs.logf("Receiving chunk %s (%d bytes) for %q", header.ChunkID, len(payload), header.Filename)
		if err := cs.StoreChunk(header.ChunkID, payload); err != nil {
			cs.logf("Error storing chunk %s: %v", header.ChunkID, err)
			return
		}
		cs.logf("Stored chunk %s: %s", header.ChunkID, helper.TruncateOutput(payload))
		reply = wire.Header{Status: wire.StatusOK}

	case wire.CmdRetrieve:
		data, err := cs.ReadChunk(header.ChunkID)
		switch {
		case err == nil:
			reply, body = wire.Header{Status: wire.StatusOK}, data
			cs.logf("Sent chunk %s (%d bytes)", header.ChunkID, len(data))
		case err == helper.ErrChunkNotFound:
			reply = wire.Header{Status: wire.StatusNotFound}
			cs.logf("Chunk not found: %s", header.ChunkID)
		default:
			cs.logf("Error retrieving chunk %s: %v", header.ChunkID, err)
			return
		}

	case "":
		cs.logf("Invalid command from %s", conn.RemoteAddr())
		return

	default:
		cs.logf("%v: %q", helper.ErrUnknownCommand, header.Cmd)
		return
	}

	if err := wire.WriteFrame(conn, reply, body); err != nil {
		cs.logf("Error writing response to %s: %v", conn.RemoteAddr(), err)
	}
}

// Serve accepts connections on listener until Close is called.
func (cs *ChunkServer) Serve(listener net.Listener) error {
	if err := os.MkdirAll(cs.StorageRoot, 0755); err != nil {
		return errors.Wrap(err, "creating storage root")
	}

	cs.mu.Lock()
	if cs.closed {
		cs.mu.Unlock()
		listener.Close()
		return net.ErrClosed
	}
	cs.listener = listener
	cs.mu.Unlock()

	abs, _ := filepath.Abs(cs.StorageRoot)
	logx.Logf("[Datanode %s] Listening for chunk ops on %s, storage %s", logx.FGBLUE, logx.BGWHITE, cs.NodeID, listener.Addr(), abs)

	for {
		conn, err := listener.Accept()
		if err != nil {
			cs.mu.Lock()
			closed := cs.closed
			cs.mu.Unlock()
			if closed {
				return nil
			}
			cs.logf("Error accepting connection: %v", err)
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return errors.Wrap(err, "accepting connection")
		}
		cs.conns.Add(1)
		go cs.handleConn(conn)
	}
}

func (cs *ChunkServer) ListenAndServe() error {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(cs.PortNum))
	if err != nil {
		return errors.Wrapf(err, "listening on port %d", cs.PortNum)
	}
	return cs.Serve(listener)
}

// Addr is the bound listener address, nil before Serve.
func (cs *ChunkServer) Addr() net.Addr {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.listener == nil {
		return nil
	}
	return cs.listener.Addr()
}

// Close stops accepting and waits for in-flight exchanges.
func (cs *ChunkServer) Close() error {
	cs.mu.Lock()
	cs.closed = true
	listener := cs.listener
	cs.mu.Unlock()

	var err error
	if listener != nil {
		err = listener.Close()
	}
	cs.conns.Wait()
	return err
}
