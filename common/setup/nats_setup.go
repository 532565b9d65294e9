package setup

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/goccy/go-yaml"
	"github.com/hashicorp/go-version"
	"github.com/nats-io/nats.go/jetstream"
	"gitlab.com/grcflow/grcflow/common"
	flowVersion "gitlab.com/grcflow/grcflow/common/version"
)

// versionMetadataKey is stamped on every JetStream object this package
// provisions so later server versions can decide whether to upgrade it.
const versionMetadataKey = "grcflow_version"

// NatsConfig is the yaml-backed description of the streams and buckets the
// server provisions on startup.
type NatsConfig struct {
	Streams  []NatsStream   `json:"streams"`
	KeyValue []NatsKeyValue `json:"buckets"`
}

// NatsKeyValue describes one key-value bucket to provision.
type NatsKeyValue struct {
	Config jetstream.KeyValueConfig `json:"nats-config"`
}

// NatsConsumer describes one durable consumer to provision.
type NatsConsumer struct {
	Config jetstream.ConsumerConfig `json:"nats-config"`
}

// NatsStream describes one stream and its consumers.
type NatsStream struct {
	Config    jetstream.StreamConfig `json:"nats-config"`
	Consumers []NatsConsumer         `json:"nats-consumers"`
}

// Nats provisions the streams, consumers and buckets named in the yaml
// config.  Bucket names in the config are templates; bucketNameFn renders
// them, typically binding each one to a tenant.
func Nats(ctx context.Context, nc common.NatsConn, js jetstream.JetStream, storageType jetstream.StorageType, config string, update bool, bucketNameFn func(string) string) error {
	cfg := &NatsConfig{}
	if err := yaml.Unmarshal([]byte(config), cfg); err != nil {
		return fmt.Errorf("parse nats-config.yaml: %w", err)
	}

	for _, stream := range cfg.Streams {
		if err := ensureStream(ctx, js, stream.Config, storageType); err != nil {
			return fmt.Errorf("ensure stream: %w", err)
		}
		for _, consumer := range stream.Consumers {
			if err := ensureConsumer(ctx, js, stream.Config.Name, consumer.Config, update, storageType); err != nil {
				return fmt.Errorf("ensure consumer: %w", err)
			}
		}
	}

	return EnsureBuckets(ctx, cfg, js, storageType, bucketNameFn)
}

// EnsureBuckets provisions every bucket in cfg that does not already exist.
func EnsureBuckets(ctx context.Context, cfg *NatsConfig, js jetstream.JetStream, storageType jetstream.StorageType, bucketNameFn func(string) string) error {
	for i := range cfg.KeyValue {
		if err := EnsureBucket(ctx, js, cfg.KeyValue[i].Config, storageType, bucketNameFn); err != nil {
			return fmt.Errorf("ensure key-value: %w", err)
		}
	}
	return nil
}

// EnsureBucket creates a bucket if it does not exist.  The bucket name in
// the configuration is a template rendered by bucketNameFn.
func EnsureBucket(ctx context.Context, js jetstream.JetStream, cfg jetstream.KeyValueConfig, storageType jetstream.StorageType, bucketNameFn func(string) string) error {
	cfg.Bucket = bucketNameFn(cfg.Bucket)
	cfg.Storage = storageType

	_, err := js.KeyValue(ctx, cfg.Bucket)
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrBucketNotFound) {
		return fmt.Errorf("obtain bucket: %w", err)
	}
	if _, err := js.CreateKeyValue(ctx, cfg); err != nil {
		return fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
	}
	return nil
}

func ensureStream(ctx context.Context, js jetstream.JetStream, cfg jetstream.StreamConfig, storageType jetstream.StorageType) error {
	cfg.Storage = storageType

	stream, err := js.Stream(ctx, cfg.Name)
	if errors.Is(err, jetstream.ErrStreamNotFound) {
		if _, err := js.CreateStream(ctx, stampVersion(cfg)); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("get stream: %w", err)
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("get stream info: %w", err)
	}
	if !requiresUpgrade(info.Config.Metadata[versionMetadataKey], flowVersion.Version) {
		return nil
	}
	if _, err := js.UpdateStream(ctx, stampVersion(cfg)); err != nil {
		return fmt.Errorf("update stream %s: %w", cfg.Name, err)
	}
	return nil
}

func ensureConsumer(ctx context.Context, js jetstream.JetStream, streamName string, cfg jetstream.ConsumerConfig, update bool, storageType jetstream.StorageType) error {
	cfg.MemoryStorage = storageType == jetstream.MemoryStorage

	existing, err := js.Consumer(ctx, streamName, cfg.Durable)
	if errors.Is(err, jetstream.ErrConsumerNotFound) {
		cfg = stampConsumerVersion(cfg)
		if _, err := js.CreateConsumer(ctx, streamName, cfg); err != nil {
			return fmt.Errorf("create consumer '%s' with subject '%s': %w", cfg.Name, cfg.FilterSubject, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("get consumer: %w", err)
	}
	if !update {
		return nil
	}

	info, err := existing.Info(ctx)
	if err != nil {
		return fmt.Errorf("get existing consumer info: %w", err)
	}
	if !requiresUpgrade(info.Config.Metadata[versionMetadataKey], flowVersion.Version) {
		return nil
	}
	if _, err := js.UpdateConsumer(ctx, streamName, stampConsumerVersion(cfg)); err != nil {
		return fmt.Errorf("update consumer %s: %w", cfg.Name, err)
	}
	return nil
}

func stampVersion(cfg jetstream.StreamConfig) jetstream.StreamConfig {
	if cfg.Metadata == nil {
		cfg.Metadata = make(map[string]string)
	}
	cfg.Metadata[versionMetadataKey] = flowVersion.Version
	return cfg
}

func stampConsumerVersion(cfg jetstream.ConsumerConfig) jetstream.ConsumerConfig {
	if cfg.Metadata == nil {
		cfg.Metadata = make(map[string]string)
	}
	cfg.Metadata[versionMetadataKey] = flowVersion.Version
	return cfg
}

var semverSuffix = regexp.MustCompilePOSIX(`([0-9])*\.([0-9])*\.([0-9])*$`)

// requiresUpgrade compares the version stamped on an existing JetStream
// object with the running server version.  Unparseable stamps force an
// upgrade so a damaged object gets rewritten.
func requiresUpgrade(stamped string, current string) bool {
	v := semverSuffix.FindString(stamped)
	if v == "" {
		return true
	}
	was, err := version.NewVersion(v)
	if err != nil {
		return true
	}
	now, err := version.NewVersion(current)
	if err != nil {
		return true
	}
	return now.GreaterThanOrEqual(was)
}
