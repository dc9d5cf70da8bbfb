package models

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

/* =========== Catalog ===========*/

// NodeDescriptor is what the namenode knows about one datanode.
// LastHeartbeat is unix seconds; zero means no heartbeat was ever received.
type NodeDescriptor struct {
	LastHeartbeat float64 `json:"last_hb"`
	Host          string  `json:"host"`
	Port          int     `json:"tcp_port"`
}

func (nd NodeDescriptor) LastSeen() time.Time {
	if nd.LastHeartbeat <= 0 {
		return time.Time{}
	}
	sec := int64(nd.LastHeartbeat)
	nsec := int64((nd.LastHeartbeat - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// CatalogSnapshot is the persisted form of the whole catalog.
type CatalogSnapshot struct {
	Files     map[string][]string       `json:"files"`
	Chunks    map[string][]string       `json:"chunks"`
	DataNodes map[string]NodeDescriptor `json:"datanodes"`
}

/* =========== Catalog ===========*/

/* =========== Heartbeat ===========*/

// NodeID accepts both JSON strings and numbers.
type NodeID string

func (id *NodeID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = NodeID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.Errorf("node_id must be a string or number, got %s", data)
	}
	*id = NodeID(n.String())
	return nil
}

func (id NodeID) String() string {
	return string(id)
}

type Heartbeat struct {
	NodeID NodeID `json:"node_id"`
	Port   int    `json:"tcp_port,omitempty"`
}

/* =========== Heartbeat ===========*/

/* =========== Status ===========*/

type NodeState string

const (
	StateAlive NodeState = "ALIVE"
	StateDead  NodeState = "DEAD"
	StateNever NodeState = "NEVER"
)

type NodeStatus struct {
	ID            string    `json:"id"`
	Status        NodeState `json:"status"`
	LastHeartbeat string    `json:"last_heartbeat"`
	Host          string    `json:"host"`
	Port          int       `json:"tcp_port"`
}

type ClusterStatus struct {
	DataNodes []NodeStatus        `json:"datanodes"`
	Files     map[string][]string `json:"files"`
	Chunks    map[string][]string `json:"chunks"`
}

/* =========== Status ===========*/

/* =========== Upload ===========*/

// UploadResult lists the stored chunks in order. UnderReplicated holds the chunks
// that reached fewer replicas than configured, including ones that reached none.
type UploadResult struct {
	Filename        string   `json:"filename"`
	Size            int64    `json:"size"`
	ChunkIDs        []string `json:"chunks"`
	UnderReplicated []string `json:"under_replicated,omitempty"`
}

/* =========== Upload ===========*/
