package chunkserver

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNamenode collects raw heartbeat messages.
func fakeNamenode(t *testing.T) (string, <-chan []byte) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	received := make(chan []byte, 16)
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			data, _ := io.ReadAll(conn)
			conn.Close()
			received <- data
		}
	}()
	return listener.Addr().String(), received
}

func TestSendHeartbeat(t *testing.T) {
	addr, received := fakeNamenode(t)

	require.NoError(t, SendHeartbeat(context.Background(), addr, "1", 7002, time.Second))

	select {
	case data := <-received:
		var msg map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, "1", msg["node_id"])
		assert.Equal(t, float64(7002), msg["tcp_port"])
	case <-time.After(2 * time.Second):
		t.Fatal("no heartbeat received")
	}
}

func TestSendHeartbeatUnreachable(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	listener.Close()

	assert.Error(t, SendHeartbeat(context.Background(), addr, "0", 7001, time.Second))
}

func TestSendHeartbeatsRepeats(t *testing.T) {
	addr, received := fakeNamenode(t)
	cs := &ChunkServer{NodeID: "0", PortNum: 7001}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cs.SendHeartbeats(ctx, addr, 20*time.Millisecond)
		close(done)
	}()

	for i := 0; i < 3; i++ {
		select {
		case <-received:
		case <-time.After(2 * time.Second):
			t.Fatalf("heartbeat %d not received", i)
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("SendHeartbeats did not stop")
	}
}

// An unreachable namenode does not end the loop.
func TestSendHeartbeatsSurvivesFailures(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	listener.Close()

	cs := &ChunkServer{NodeID: "0", PortNum: 7001}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cs.SendHeartbeats(ctx, addr, 10*time.Millisecond)
		close(done)
	}()

	time.Sleep(60 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("SendHeartbeats returned while namenode was unreachable")
	default:
	}
	cancel()
	<-done
}
