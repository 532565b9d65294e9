package server

import (
	"context"
	"testing"
	"time"

	"github.com/hashicorp/go-version"
	natssrv "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/grcflow/grcflow/common"
	version2 "gitlab.com/grcflow/grcflow/common/version"
	"gitlab.com/grcflow/grcflow/server/messages"
	"gitlab.com/grcflow/grcflow/server/services/natz"
)

func TestRecordServerVersionRefusesNewerStore(t *testing.T) {
	nsvr, err := natssrv.NewServer(&natssrv.Options{Host: "127.0.0.1", Port: -1, JetStream: true, StoreDir: t.TempDir()})
	require.NoError(t, err)
	go nsvr.Start()
	require.True(t, nsvr.ReadyForConnections(5*time.Second))
	t.Cleanup(nsvr.Shutdown)

	nc, err := nats.Connect(nsvr.ClientURL())
	require.NoError(t, err)
	txNc, err := nats.Connect(nsvr.ClientURL())
	require.NoError(t, err)
	ns, err := natz.NewNatsService(&natz.NatsConnConfiguration{Conn: nc, TxConn: txNc, StorageType: jetstream.MemoryStorage})
	require.NoError(t, err)

	ctx := context.Background()
	running, err := version.NewVersion(version2.Version)
	require.NoError(t, err)
	s := &Server{ServerVersion: running}

	// fresh store: stamp and proceed
	require.NoError(t, s.recordServerVersion(ctx, ns))
	kv, err := ns.Js.KeyValue(ctx, messages.KvVersion)
	require.NoError(t, err)
	stored, err := common.Load(ctx, kv, "server_version")
	require.NoError(t, err)
	assert.Equal(t, version2.Version, string(stored))

	// same version again: allowed
	require.NoError(t, s.recordServerVersion(ctx, ns))

	// store written by a newer server: refuse to start
	require.NoError(t, common.Save(ctx, kv, "server_version", []byte("99.0.0")))
	err = s.recordServerVersion(ctx, ns)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refusing to start")
}
