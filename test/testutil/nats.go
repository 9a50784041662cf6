package testutil

import (
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"
)

// StartEmbeddedNATS starts an in-process NATS server with JetStream and
// returns a JetStream context connected to it.
//
// The server listens on a random local port and keeps its JetStream store
// under t.TempDir(). Connection and server shut down with the test.
//
// Parameters:
//   - t: The testing context
//
// Returns:
//   - jetstream.JetStream: A JetStream context ready for use
func StartEmbeddedNATS(t *testing.T) jetstream.JetStream {
	t.Helper()

	ns := startServer(t)

	nc, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err, "failed to connect to NATS server")
	t.Cleanup(nc.Close)

	js, err := jetstream.New(nc)
	require.NoError(t, err, "failed to create JetStream context")

	return js
}

// NewKVBucket creates a JetStream key-value bucket for a test.
//
// Parameters:
//   - t: The testing context
//   - js: JetStream context from StartEmbeddedNATS
//   - bucket: The bucket name
//
// Returns:
//   - jetstream.KeyValue: The created bucket
func NewKVBucket(t *testing.T, js jetstream.JetStream, bucket string) jetstream.KeyValue {
	t.Helper()

	kv, err := js.CreateKeyValue(t.Context(), jetstream.KeyValueConfig{Bucket: bucket})
	require.NoError(t, err, "failed to create KV bucket")

	return kv
}

func startServer(t *testing.T) *server.Server {
	t.Helper()

	ns, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
		NoSigs:    true,
	})
	require.NoError(t, err, "failed to create NATS server")

	ns.Start()
	t.Cleanup(ns.Shutdown)

	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready for connections")
	}

	return ns
}
