package master

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/theritikchoure/logx"

	"github.com/mini_hdfs_project/helper"
	"github.com/mini_hdfs_project/models"
)

// NodeState derives liveness from the last heartbeat: ALIVE while strictly less
// than timeout has elapsed, DEAD after, NEVER if no heartbeat was recorded.
func NodeState(now, lastHeartbeat time.Time, timeout time.Duration) models.NodeState {
	if lastHeartbeat.IsZero() {
		return models.StateNever
	}
	if now.Sub(lastHeartbeat) < timeout {
		return models.StateAlive
	}
	return models.StateDead
}

// LivenessRegistry accepts heartbeat connections and records them in the catalog.
// Heartbeats are handled inline, one connection at a time.
type LivenessRegistry struct {
	catalog *Catalog
	Timeout time.Duration
	// bounds reading a single heartbeat message
	ReadTimeout time.Duration
	Now         func() time.Time

	mu       sync.Mutex
	listener net.Listener
	closed   bool
}

func NewLivenessRegistry(catalog *Catalog, timeout time.Duration) *LivenessRegistry {
	return &LivenessRegistry{
		catalog:     catalog,
		Timeout:     timeout,
		ReadTimeout: 5 * time.Second,
		Now:         time.Now,
	}
}

/* ============================================ STATUS  ===========================================*/

func (r *LivenessRegistry) Status(nodeID string) (models.NodeStatus, bool) {
	nd, ok := r.catalog.Node(nodeID)
	if !ok {
		return models.NodeStatus{}, false
	}
	return r.describe(nodeID, nd, r.Now()), true
}

// Statuses reports every known datanode, ordered by id.
func (r *LivenessRegistry) Statuses() []models.NodeStatus {
	now := r.Now()
	view := r.catalog.View()
	statuses := make([]models.NodeStatus, 0, len(view.DataNodes))
	for _, id := range r.catalog.NodeIDs() {
		nd, ok := view.DataNodes[id]
		if !ok {
			continue
		}
		statuses = append(statuses, r.describe(id, nd, now))
	}
	return statuses
}

func (r *LivenessRegistry) describe(nodeID string, nd models.NodeDescriptor, now time.Time) models.NodeStatus {
	last := nd.LastSeen()
	lastText := "never"
	if !last.IsZero() {
		lastText = last.Format("2006-01-02 15:04:05")
	}
	return models.NodeStatus{
		ID:            nodeID,
		Status:        NodeState(now, last, r.Timeout),
		LastHeartbeat: lastText,
		Host:          nd.Host,
		Port:          nd.Port,
	}
}

/* ============================================ HEARTBEATS  ===========================================*/

// ParseHeartbeat decodes one heartbeat message.
func ParseHeartbeat(data []byte) (models.Heartbeat, error) {
	var hb models.Heartbeat
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return hb, errors.Wrap(helper.ErrMalformedHeartbeat, "empty message")
	}
	if err := json.Unmarshal(data, &hb); err != nil {
		return hb, errors.Wrapf(helper.ErrMalformedHeartbeat, "%v", err)
	}
	if hb.NodeID == "" {
		return hb, errors.Wrap(helper.ErrMalformedHeartbeat, "missing node_id")
	}
	return hb, nil
}

// RecordHeartbeat stamps nodeID as seen from host at the given time.
// The service port comes from the message, else from the node id's last digit,
// else from what the catalog already holds.
func (r *LivenessRegistry) RecordHeartbeat(hb models.Heartbeat, host string, at time.Time) error {
	nodeID := hb.NodeID.String()
	port := hb.Port
	if port <= 0 {
		port, _ = helper.DerivedPort(nodeID)
	}
	if port <= 0 {
		if nd, ok := r.catalog.Node(nodeID); ok {
			port = nd.Port
		}
	}
	if port <= 0 {
		return errors.Wrapf(helper.ErrMalformedHeartbeat, "no service port for node %q", nodeID)
	}

	return r.catalog.UpsertNode(nodeID, func(nd *models.NodeDescriptor) {
		nd.LastHeartbeat = models.UnixSeconds(at)
		nd.Host = host
		nd.Port = port
	})
}

func (r *LivenessRegistry) handle(conn net.Conn) error {
	defer conn.Close()

	if r.ReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(r.ReadTimeout))
	}
	data, err := io.ReadAll(io.LimitReader(conn, helper.HEARTBEAT_MAX_BYTES))
	if err != nil && len(data) == 0 {
		return errors.Wrap(err, "reading heartbeat")
	}
	if len(bytes.TrimSpace(data)) == 0 {
		// connection opened and closed without a message
		return nil
	}

	hb, err := ParseHeartbeat(data)
	if err != nil {
		return err
	}
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		host = conn.RemoteAddr().String()
	}
	if err := r.RecordHeartbeat(hb, host, r.Now()); err != nil {
		return err
	}
	log.Printf("[Namenode] Heartbeat from datanode %s (%s)\n", hb.NodeID, host)
	return nil
}

// Serve accepts heartbeat connections until Close. A bad heartbeat is logged and
// dropped; it never stops the loop.
func (r *LivenessRegistry) Serve(listener net.Listener) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		listener.Close()
		return net.ErrClosed
	}
	r.listener = listener
	r.mu.Unlock()

	logx.Logf("[Namenode] Heartbeat TCP listener on %s", logx.FGBLUE, logx.BGWHITE, listener.Addr())

	for {
		conn, err := listener.Accept()
		if err != nil {
			r.mu.Lock()
			closed := r.closed
			r.mu.Unlock()
			if closed {
				return nil
			}
			log.Println("[Namenode] Heartbeat accept error:", err)
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return errors.Wrap(err, "accepting heartbeat")
		}
		if err := r.handle(conn); err != nil {
			log.Println("[Namenode] Heartbeat TCP error:", err)
		}
	}
}

func (r *LivenessRegistry) ListenAndServe(port int) error {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(port))
	if err != nil {
		return errors.Wrapf(err, "listening on heartbeat port %d", port)
	}
	return r.Serve(listener)
}

func (r *LivenessRegistry) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

func (r *LivenessRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.listener != nil {
		return r.listener.Close()
	}
	return nil
}
