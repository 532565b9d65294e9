package common_test

import (
	"context"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/grcflow/grcflow/common"
	zensvr "gitlab.com/grcflow/grcflow/zen/server"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func setupKv(t *testing.T) (context.Context, jetstream.KeyValue) {
	t.Helper()
	nsvr := &zensvr.NatsServer{}
	nsvr.Listen("127.0.0.1", -1)
	t.Cleanup(nsvr.Shutdown)

	nc, err := nats.Connect(nsvr.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	js, err := jetstream.New(nc)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, common.EnsureBucket(ctx, js, jetstream.MemoryStorage, "TEST_BUCKET", 0))
	kv, err := js.KeyValue(ctx, "TEST_BUCKET")
	require.NoError(t, err)
	return ctx, kv
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx, kv := setupKv(t)
	require.NoError(t, common.Save(ctx, kv, "k1", []byte("v1")))
	got, err := common.Load(ctx, kv, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)
}

func TestSaveObjLoadObjRoundTrip(t *testing.T) {
	ctx, kv := setupKv(t)
	require.NoError(t, common.SaveObj(ctx, kv, "r1", &record{Name: "audit", Count: 3}))
	got := &record{}
	require.NoError(t, common.LoadObj(ctx, kv, "r1", got))
	assert.Equal(t, "audit", got.Name)
	assert.Equal(t, 3, got.Count)
}

func TestLoadObjMissingKey(t *testing.T) {
	ctx, kv := setupKv(t)
	err := common.LoadObj(ctx, kv, "absent", &record{})
	assert.ErrorIs(t, err, jetstream.ErrKeyNotFound)
}

func TestUpdateObjAppliesMutation(t *testing.T) {
	ctx, kv := setupKv(t)
	require.NoError(t, common.SaveObj(ctx, kv, "r1", &record{Name: "audit", Count: 1}))
	err := common.UpdateObj(ctx, kv, "r1", record{}, func(v record) (record, error) {
		v.Count++
		return v, nil
	})
	require.NoError(t, err)
	got := &record{}
	require.NoError(t, common.LoadObj(ctx, kv, "r1", got))
	assert.Equal(t, 2, got.Count)
}

func TestUpdateObjMissingKey(t *testing.T) {
	ctx, kv := setupKv(t)
	err := common.UpdateObj(ctx, kv, "absent", record{}, func(v record) (record, error) {
		return v, nil
	})
	assert.ErrorIs(t, err, jetstream.ErrKeyNotFound)
}

func TestKvKeys(t *testing.T) {
	ctx, kv := setupKv(t)
	keys, err := common.KvKeys(ctx, kv)
	require.NoError(t, err)
	assert.Empty(t, keys)

	require.NoError(t, common.Save(ctx, kv, "a", []byte("1")))
	require.NoError(t, common.Save(ctx, kv, "b", []byte("2")))
	keys, err = common.KvKeys(ctx, kv)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, keys)
}

func TestDelete(t *testing.T) {
	ctx, kv := setupKv(t)
	require.NoError(t, common.Save(ctx, kv, "gone", []byte("1")))
	require.NoError(t, common.Delete(ctx, kv, "gone"))
	_, err := common.Load(ctx, kv, "gone")
	assert.ErrorIs(t, err, jetstream.ErrKeyNotFound)
}
