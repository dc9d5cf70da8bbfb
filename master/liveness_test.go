package master

import (
	"context"
	"net"
	"time"

	"gopkg.in/check.v1"

	"github.com/mini_hdfs_project/chunkserver"
	"github.com/mini_hdfs_project/helper"
	"github.com/mini_hdfs_project/models"
)

type LivenessSuite struct {
	catalog  *Catalog
	registry *LivenessRegistry
	now      time.Time
}

var _ = check.Suite(&LivenessSuite{})

func (s *LivenessSuite) SetUpTest(c *check.C) {
	var err error
	s.catalog, err = OpenCatalog("", helper.DefaultMasterConfig().Replicas)
	c.Assert(err, check.IsNil)
	s.now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.Local)
	s.registry = NewLivenessRegistry(s.catalog, 10*time.Second)
	s.registry.Now = func() time.Time { return s.now }
}

func (s *LivenessSuite) TestNodeStateBoundary(c *check.C) {
	timeout := 10 * time.Second
	now := s.now

	c.Check(NodeState(now, time.Time{}, timeout), check.Equals, models.StateNever)
	c.Check(NodeState(now, now, timeout), check.Equals, models.StateAlive)
	c.Check(NodeState(now, now.Add(-timeout+time.Millisecond), timeout), check.Equals, models.StateAlive)
	c.Check(NodeState(now, now.Add(-timeout), timeout), check.Equals, models.StateDead)
	c.Check(NodeState(now, now.Add(-timeout-time.Millisecond), timeout), check.Equals, models.StateDead)
}

func (s *LivenessSuite) TestDefaultNodesHaveNeverReported(c *check.C) {
	statuses := s.registry.Statuses()
	c.Assert(statuses, check.HasLen, 2)
	for _, st := range statuses {
		c.Check(st.Status, check.Equals, models.StateNever)
		c.Check(st.LastHeartbeat, check.Equals, "never")
	}
}

func (s *LivenessSuite) TestHeartbeatMakesNodeAliveThenDead(c *check.C) {
	hb := models.Heartbeat{NodeID: "1", Port: 7002}
	c.Assert(s.registry.RecordHeartbeat(hb, "10.0.0.9", s.now), check.IsNil)

	st, ok := s.registry.Status("1")
	c.Assert(ok, check.Equals, true)
	c.Check(st.Status, check.Equals, models.StateAlive)
	c.Check(st.Host, check.Equals, "10.0.0.9")
	c.Check(st.LastHeartbeat, check.Equals, "2024-03-01 12:00:00")

	s.now = s.now.Add(9*time.Second + 999*time.Millisecond)
	st, _ = s.registry.Status("1")
	c.Check(st.Status, check.Equals, models.StateAlive)

	s.now = s.now.Add(2 * time.Millisecond)
	st, _ = s.registry.Status("1")
	c.Check(st.Status, check.Equals, models.StateDead)
}

func (s *LivenessSuite) TestHeartbeatPortResolution(c *check.C) {
	// explicit port wins
	c.Assert(s.registry.RecordHeartbeat(models.Heartbeat{NodeID: "dn3", Port: 9100}, "h", s.now), check.IsNil)
	nd, _ := s.catalog.Node("dn3")
	c.Check(nd.Port, check.Equals, 9100)

	// derived from the last digit of the id
	c.Assert(s.registry.RecordHeartbeat(models.Heartbeat{NodeID: "dn4"}, "h", s.now), check.IsNil)
	nd, _ = s.catalog.Node("dn4")
	c.Check(nd.Port, check.Equals, helper.DATANODE_BASE_PORT+4)

	// no digit, but the catalog already knows the port
	c.Assert(s.catalog.UpsertNode("alpha", func(nd *models.NodeDescriptor) { nd.Port = 8000 }), check.IsNil)
	c.Assert(s.registry.RecordHeartbeat(models.Heartbeat{NodeID: "alpha"}, "h", s.now), check.IsNil)
	nd, _ = s.catalog.Node("alpha")
	c.Check(nd.Port, check.Equals, 8000)

	err := s.registry.RecordHeartbeat(models.Heartbeat{NodeID: "beta"}, "h", s.now)
	c.Check(err, check.ErrorMatches, ".*no service port.*")
	_, ok := s.catalog.Node("beta")
	c.Check(ok, check.Equals, false)
}

func (s *LivenessSuite) TestParseHeartbeat(c *check.C) {
	hb, err := ParseHeartbeat([]byte(`{"node_id": "0"}`))
	c.Assert(err, check.IsNil)
	c.Check(hb.NodeID, check.Equals, models.NodeID("0"))

	hb, err = ParseHeartbeat([]byte("{\"node_id\": 1, \"tcp_port\": 7002}\n"))
	c.Assert(err, check.IsNil)
	c.Check(hb, check.Equals, models.Heartbeat{NodeID: "1", Port: 7002})

	for _, bad := range []string{"", "garbage", `{"node_id": ""}`, `{"node_id": [1]}`, `{}`} {
		_, err := ParseHeartbeat([]byte(bad))
		c.Check(err, check.NotNil, check.Commentf("input %q", bad))
	}
}

func (s *LivenessSuite) startListener(c *check.C) string {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	c.Assert(err, check.IsNil)
	s.registry.Now = time.Now
	go s.registry.Serve(listener)
	return listener.Addr().String()
}

func (s *LivenessSuite) TearDownTest(c *check.C) {
	s.registry.Close()
}

func (s *LivenessSuite) waitForNode(c *check.C, nodeID string) models.NodeDescriptor {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if nd, ok := s.catalog.Node(nodeID); ok && nd.LastHeartbeat > 0 {
			return nd
		}
		time.Sleep(5 * time.Millisecond)
	}
	c.Fatalf("no heartbeat recorded for node %s", nodeID)
	return models.NodeDescriptor{}
}

func (s *LivenessSuite) TestListenerRecordsHeartbeat(c *check.C) {
	addr := s.startListener(c)

	err := chunkserver.SendHeartbeat(context.Background(), addr, "5", 7777, time.Second)
	c.Assert(err, check.IsNil)

	nd := s.waitForNode(c, "5")
	c.Check(nd.Host, check.Equals, "127.0.0.1")
	c.Check(nd.Port, check.Equals, 7777)
	st, _ := s.registry.Status("5")
	c.Check(st.Status, check.Equals, models.StateAlive)
}

func (s *LivenessSuite) TestListenerSurvivesBadHeartbeats(c *check.C) {
	addr := s.startListener(c)

	for _, msg := range []string{"not json at all", `{"node_id": null}`, ""} {
		conn, err := net.Dial("tcp", addr)
		c.Assert(err, check.IsNil)
		conn.Write([]byte(msg))
		conn.Close()
	}

	err := chunkserver.SendHeartbeat(context.Background(), addr, "0", 0, time.Second)
	c.Assert(err, check.IsNil)
	nd := s.waitForNode(c, "0")
	c.Check(nd.Port, check.Equals, helper.DATANODE_BASE_PORT)
}
