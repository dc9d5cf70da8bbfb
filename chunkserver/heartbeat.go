package chunkserver

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/mini_hdfs_project/models"
)

// SendHeartbeat opens a short-lived connection to the namenode heartbeat port and
// writes a single {"node_id", "tcp_port"} message.
func SendHeartbeat(ctx context.Context, masterAddr string, nodeID string, port int, timeout time.Duration) error {
	msg, err := json.Marshal(models.Heartbeat{NodeID: models.NodeID(nodeID), Port: port})
	if err != nil {
		return errors.Wrap(err, "encoding heartbeat")
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", masterAddr)
	if err != nil {
		return errors.Wrapf(err, "dialing namenode %s", masterAddr)
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(timeout))
	if _, err := conn.Write(msg); err != nil {
		return errors.Wrap(err, "writing heartbeat")
	}
	return nil
}

// SendHeartbeats reports liveness to masterAddr every interval until ctx is done.
// Failures are logged and the loop carries on at the same interval.
func (cs *ChunkServer) SendHeartbeats(ctx context.Context, masterAddr string, interval time.Duration) {
	cs.logf("Starting TCP heartbeat to %s every %v", masterAddr, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := SendHeartbeat(ctx, masterAddr, cs.NodeID, cs.PortNum, interval); err != nil {
			cs.logf("Heartbeat error: %v", err)
		} else {
			cs.logf("Heartbeat sent successfully")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
