package runtime

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectoradmin/internal/config"
	"github.com/fyrsmithlabs/vectoradmin/internal/queue"
)

func startTestNATSServer(t *testing.T) *natsserver.Server {
	t.Helper()
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	}
	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()
	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})
	return server
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "jobs.pinecone.deleteDocument", Subject("pinecone/deleteDocument"))
	assert.Equal(t, "jobs.workspace.migrate", Subject("workspace/migrate"))
}

func TestPublishRejectsUnknownTask(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	d, err := NewDispatcher(nc, Registry{"known/task": func(context.Context, []byte) error { return nil }}, zap.NewNop())
	require.NoError(t, err)

	err = d.Publish(context.Background(), queue.Task{Name: "unknown/task"})
	require.Error(t, err)
}

func TestNewDispatcherRejectsNilHandler(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	_, err = NewDispatcher(nc, Registry{"broken/task": nil}, zap.NewNop())
	require.Error(t, err)
}

func TestDispatchDeliversToHandler(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	received := make(chan []byte, 1)
	registry := Registry{
		"chroma/cloneWorkspace": func(_ context.Context, payload []byte) error {
			received <- payload
			return nil
		},
	}

	d, err := NewDispatcher(nc, registry, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))
	defer d.Close()

	require.NoError(t, d.Publish(context.Background(), queue.Task{
		Name:    "chroma/cloneWorkspace",
		Payload: []byte(`{"jobId":42}`),
	}))

	select {
	case payload := <-received:
		assert.JSONEq(t, `{"jobId":42}`, string(payload))
	case <-time.After(5 * time.Second):
		t.Fatal("handler never received task")
	}
}

func TestQueueGroupDeliversOnce(t *testing.T) {
	server := startTestNATSServer(t)

	var count atomic.Int32
	registry := Registry{
		"qdrant/deleteFragment": func(context.Context, []byte) error {
			count.Add(1)
			return nil
		},
	}

	// Two workers sharing the queue group.
	for i := 0; i < 2; i++ {
		nc, err := nats.Connect(server.ClientURL())
		require.NoError(t, err)
		defer nc.Close()

		d, err := NewDispatcher(nc, registry, zap.NewNop())
		require.NoError(t, err)
		require.NoError(t, d.Start(context.Background()))
		defer d.Close()
	}

	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()
	pub, err := NewDispatcher(nc, registry, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, pub.Publish(context.Background(), queue.Task{Name: "qdrant/deleteFragment", Payload: []byte(`{"jobId":1}`)}))

	require.Eventually(t, func() bool {
		return count.Load() == 1
	}, 5*time.Second, 10*time.Millisecond)

	// Give a second delivery time to show up if the group were broken.
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), count.Load())
}

func TestConnectEmbedded(t *testing.T) {
	nc, cleanup, err := Connect(config.NATSConfig{Embedded: true})
	require.NoError(t, err)
	defer cleanup()

	assert.True(t, nc.IsConnected())
}
