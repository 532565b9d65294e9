package common

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"reflect"
	"time"

	version2 "github.com/hashicorp/go-version"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"gitlab.com/grcflow/grcflow/common/logx"
	version3 "gitlab.com/grcflow/grcflow/common/version"
	errors2 "gitlab.com/grcflow/grcflow/server/errors"
)

// NatsConn is the trimmed down NATS Connection interface that only encompasses the methods used by GRCFlow
type NatsConn interface {
	QueueSubscribe(subj string, queue string, cb nats.MsgHandler) (*nats.Subscription, error)
	Publish(subj string, bytes []byte) error
	PublishMsg(msg *nats.Msg) error
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
}

const jsErrCodeStreamWrongLastSequence = 10071

// updateAttempts bounds optimistic revision-checked updates before giving up.
const updateAttempts = 8

func updateKV(ctx context.Context, kv jetstream.KeyValue, k string, updateFn func(v []byte) ([]byte, error)) error {
	for attempt := 0; attempt < updateAttempts; attempt++ {
		entry, err := kv.Get(ctx, k)
		if err != nil {
			return fmt.Errorf("get value to update: %w", err)
		}
		rev := entry.Revision()
		uv, err := updateFn(entry.Value())
		if err != nil {
			return fmt.Errorf("update function: %w", err)
		}
		_, err = kv.Update(ctx, k, uv, rev)
		if err != nil {
			maxJitter := &big.Int{}
			maxJitter.SetInt64(5000)
			testErr := &jetstream.APIError{}
			if errors.As(err, &testErr) {
				if testErr.ErrorCode == jsErrCodeStreamWrongLastSequence {
					dur, err := rand.Int(rand.Reader, maxJitter) // Jitter
					if err != nil {
						panic("read random")
					}
					time.Sleep(time.Duration(dur.Int64()) * time.Microsecond)
					continue
				}
			}
			return fmt.Errorf("update kv: %w", err)
		}
		return nil
	}
	return fmt.Errorf("update kv %s(%s): %w", kv.Bucket(), k, errors2.ErrUpdateConflict)
}

// Save saves a value to a key value store
func Save(ctx context.Context, kv jetstream.KeyValue, k string, v []byte) error {
	log := logx.FromContext(ctx)
	if log.Enabled(ctx, errors2.VerboseLevel) {
		log.Log(ctx, errors2.VerboseLevel, "Set KV", slog.String("bucket", kv.Bucket()), slog.String("key", k), slog.String("val", string(v)))
	}
	if _, err := kv.Put(ctx, k, v); err != nil {
		return fmt.Errorf("save kv: %w", err)
	}
	return nil
}

// Load loads a value from a key value store
func Load(ctx context.Context, kv jetstream.KeyValue, k string) ([]byte, error) {
	log := logx.FromContext(ctx)
	if log.Enabled(ctx, errors2.VerboseLevel) {
		log.Log(ctx, errors2.VerboseLevel, "Get KV", slog.Any("bucket", kv.Bucket()), slog.String("key", k))
	}
	b, err := kv.Get(ctx, k)
	if err == nil {
		return b.Value(), nil
	}
	return nil, fmt.Errorf("load value from KV: %w", err)
}

// SaveObj save an object to a key value store
func SaveObj(ctx context.Context, kv jetstream.KeyValue, k string, v any) error {
	log := logx.FromContext(ctx)
	if log.Enabled(ctx, errors2.TraceLevel) {
		log.Log(ctx, errors2.TraceLevel, "save KV object", slog.String("bucket", kv.Bucket()), slog.String("key", k), slog.Any("val", v))
	}
	b, err := json.Marshal(v)
	if err == nil {
		return Save(ctx, kv, k, b)
	}
	return fmt.Errorf("save object into KV: %w", err)
}

// LoadObj loads an object from a key value store
func LoadObj(ctx context.Context, kv jetstream.KeyValue, k string, v any) error {
	log := logx.FromContext(ctx)
	if log.Enabled(ctx, errors2.TraceLevel) {
		log.Log(ctx, errors2.TraceLevel, "load KV object", slog.String("bucket", kv.Bucket()), slog.String("key", k))
	}
	b, err := Load(ctx, kv, k)
	if err != nil {
		return fmt.Errorf("load object from KV %s(%s): %w", kv.Bucket(), k, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("unmarshal in LoadObj: %w", err)
	}
	return nil
}

// UpdateObj saves an object to a key value store after using updateFn to update it.
// The key must already exist: a transition against a missing entity is an error,
// not an upsert.  On a revision conflict the update function is re-run against
// the freshly loaded value.
func UpdateObj[T any](ctx context.Context, kv jetstream.KeyValue, k string, msg T, updateFn func(v T) (T, error)) error {
	log := logx.FromContext(ctx)
	if log.Enabled(ctx, errors2.TraceLevel) {
		log.Log(ctx, errors2.TraceLevel, "update KV object", slog.String("bucket", kv.Bucket()), slog.String("key", k), slog.Any("fn", reflect.TypeOf(updateFn)))
	}
	return updateKV(ctx, kv, k, func(bv []byte) ([]byte, error) {
		v := new(T)
		if err := json.Unmarshal(bv, v); err != nil {
			return nil, fmt.Errorf("unmarshal for KV update: %w", err)
		}
		uv, err := updateFn(*v)
		if err != nil {
			return nil, fmt.Errorf("update function: %w", err)
		}
		b, err := json.Marshal(uv)
		if err != nil {
			return nil, fmt.Errorf("marshal updated object: %w", err)
		}
		return b, nil
	})
}

// Delete deletes an item from a key value store.
func Delete(ctx context.Context, kv jetstream.KeyValue, key string) error {
	if err := kv.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete key: %w", err)
	}
	return nil
}

// EnsureBuckets ensures that a list of key value stores exist
func EnsureBuckets(ctx context.Context, js jetstream.JetStream, storageType jetstream.StorageType, names []string) error {
	for _, i := range names {
		if err := EnsureBucket(ctx, js, storageType, i, 0); err != nil {
			return fmt.Errorf("ensure bucket: %w", err)
		}
	}
	return nil
}

// EnsureBucket creates a bucket if it does not exist
func EnsureBucket(ctx context.Context, js jetstream.JetStream, storageType jetstream.StorageType, name string, ttl time.Duration) error {
	if _, err := js.KeyValue(ctx, name); errors.Is(err, jetstream.ErrBucketNotFound) {
		if _, err := js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:  name,
			Storage: storageType,
			TTL:     ttl,
		}); err != nil {
			return fmt.Errorf("ensure buckets: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("obtain bucket: %w", err)
	}
	return nil
}

// KvKeys returns all keys in a key value store.  An empty bucket yields an
// empty slice rather than an error.
func KvKeys(ctx context.Context, kv jetstream.KeyValue) ([]string, error) {
	lister, err := kv.ListKeys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("list keys: %w", err)
	}
	keys := make([]string, 0)
	for k := range lister.Keys() {
		keys = append(keys, k)
	}
	return keys, nil
}

// PublishObj publishes a JSON serialized object to a subject.
func PublishObj(ctx context.Context, conn NatsConn, subject string, v any, middlewareFn func(*nats.Msg) error) error {
	msg := nats.NewMsg(subject)
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("serialize object: %w", err)
	}
	msg.Data = b
	if middlewareFn != nil {
		if err := middlewareFn(msg); err != nil {
			return fmt.Errorf("middleware: %w", err)
		}
	}
	if err = conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// CheckVersion checks the NATS server version against a minimum supported version
func CheckVersion(ctx context.Context, nc *nats.Conn) error {
	nvStr := nc.ConnectedServerVersion()
	nv, err := version2.NewVersion(nvStr)
	if err != nil {
		return fmt.Errorf("parse nats version: %w", err)
	}
	if nv.LessThan(version3.NatsVersion) {
		return fmt.Errorf("nats version %s not supported.  The minimum supported version is %s", nvStr, version3.NatsVersion)
	}
	return nil
}
