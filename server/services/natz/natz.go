package natz

import (
	"context"
	_ "embed"
	"fmt"
	"sync"

	"github.com/goccy/go-yaml"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"gitlab.com/grcflow/grcflow/common"
	"gitlab.com/grcflow/grcflow/common/setup"
	"gitlab.com/grcflow/grcflow/server/messages"
)

// NatsConfig holds the current nats configuration for GRCFlow.
//
//go:embed nats-config.yaml
var NatsConfig string

// NatsConnConfiguration represents the configuration for a NATS connection.
//
// - Conn: The NATS connection.
// - TxConn: The transactional NATS connection.
// - StorageType: The storage type for JetStream.
type NatsConnConfiguration struct {
	Conn            *nats.Conn
	TxConn          *nats.Conn
	StorageType     jetstream.StorageType
	JetStreamDomain string
}

// NatsService contains items enabling nats related communications e.g. publish, nats object manipulation
// via jetstream and per-tenant KV access.
type NatsService struct {
	Js          jetstream.JetStream
	TxJS        jetstream.JetStream
	Conn        common.NatsConn
	txConn      common.NatsConn
	StorageType jetstream.StorageType
	tenantKvs   map[string]*TenantKvs
	Rwmx        sync.RWMutex
}

// TenantKvs defines all the key value stores GRCFlow needs to operate for a tenant
type TenantKvs struct {
	Definition jetstream.KeyValue
	Instance   jetstream.KeyValue
	TaskIndex  jetstream.KeyValue
	Audit      jetstream.KeyValue
	Role       jetstream.KeyValue
	Actor      jetstream.KeyValue
}

// NewNatsService constructs a new NatsService
func NewNatsService(nc *NatsConnConfiguration) (*NatsService, error) {
	tenant := messages.DefaultTenant

	var js jetstream.JetStream
	if nc.JetStreamDomain != "" {
		js2, err := jetstream.NewWithDomain(nc.Conn, nc.JetStreamDomain)
		if err != nil {
			return nil, fmt.Errorf("connect to jetstream: %w", err)
		}
		js = js2
	} else {
		js2, err := jetstream.New(nc.Conn)
		if err != nil {
			return nil, fmt.Errorf("connect to jetstream: %w", err)
		}
		js = js2
	}

	var txJS jetstream.JetStream
	if nc.JetStreamDomain != "" {
		txJS2, err := jetstream.NewWithDomain(nc.TxConn, nc.JetStreamDomain)
		if err != nil {
			return nil, fmt.Errorf("connect to tx jetstream: %w", err)
		}
		txJS = txJS2
	} else {
		txJS2, err := jetstream.New(nc.TxConn)
		if err != nil {
			return nil, fmt.Errorf("connect to tx jetstream: %w", err)
		}
		txJS = txJS2
	}

	ctx := context.Background()
	if err := setup.Nats(ctx, nc.Conn, js, nc.StorageType, NatsConfig, true, func(template string) string {
		return messages.TenantBucket(template, tenant)
	}); err != nil {
		return nil, fmt.Errorf("set up nats queue infrastructure: %w", err)
	}

	if err := common.EnsureBucket(ctx, js, nc.StorageType, messages.KvVersion, 0); err != nil {
		return nil, fmt.Errorf("ensure version bucket: %w", err)
	}

	tKvs, err2 := initTenantKvs(ctx, tenant, js, nc.StorageType, NatsConfig)
	if err2 != nil {
		return nil, fmt.Errorf("failed to init kvs for tenant %s, %w", tenant, err2)
	}

	return &NatsService{
		Js:          js,
		TxJS:        txJS,
		Conn:        nc.Conn,
		txConn:      nc.TxConn,
		StorageType: nc.StorageType,
		tenantKvs:   map[string]*TenantKvs{tenant: tKvs},
	}, nil
}

// KvsFor retrieves the KVs for a given tenant. If they do not exist for a tenant,
// it will initialise them and store them in a map for future lookup.
func (s *NatsService) KvsFor(ctx context.Context, tenant string) (*TenantKvs, error) {
	if tenant == "" {
		tenant = messages.DefaultTenant
	}
	s.Rwmx.RLock()
	tKvs, exists := s.tenantKvs[tenant]
	s.Rwmx.RUnlock()
	if exists {
		return tKvs, nil
	}

	s.Rwmx.Lock()
	defer s.Rwmx.Unlock()
	// another first-touch caller may have initialised the tenant while we
	// waited for the write lock
	if tKvs, exists := s.tenantKvs[tenant]; exists {
		return tKvs, nil
	}
	kvs, err := initTenantKvs(ctx, tenant, s.Js, s.StorageType, NatsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise KVs for tenant %s: %w", tenant, err)
	}
	s.tenantKvs[tenant] = kvs
	return kvs, nil
}

func initTenantKvs(ctx context.Context, tenant string, js jetstream.JetStream, storageType jetstream.StorageType, config string) (*TenantKvs, error) {
	cfg := &setup.NatsConfig{}
	if err := yaml.Unmarshal([]byte(config), cfg); err != nil {
		return nil, fmt.Errorf("initTenantKvs - parse nats-config.yaml: %w", err)
	}
	err := setup.EnsureBuckets(ctx, cfg, js, storageType, func(template string) string {
		return messages.TenantBucket(template, tenant)
	})
	if err != nil {
		return nil, fmt.Errorf("initTenantKvs - EnsureBuckets: %w", err)
	}

	tKvs := TenantKvs{}
	kvs := make(map[string]*jetstream.KeyValue)

	kvs[messages.TenantBucket(messages.KvDefinition, tenant)] = &tKvs.Definition
	kvs[messages.TenantBucket(messages.KvInstance, tenant)] = &tKvs.Instance
	kvs[messages.TenantBucket(messages.KvTaskIndex, tenant)] = &tKvs.TaskIndex
	kvs[messages.TenantBucket(messages.KvAudit, tenant)] = &tKvs.Audit
	kvs[messages.TenantBucket(messages.KvRole, tenant)] = &tKvs.Role
	kvs[messages.TenantBucket(messages.KvActor, tenant)] = &tKvs.Actor

	for k, v := range kvs {
		kv, err := js.KeyValue(ctx, k)
		if err != nil {
			return nil, fmt.Errorf("open %s KV: %w", k, err)
		}
		*v = kv
	}
	return &tKvs, nil
}
