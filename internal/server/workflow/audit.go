package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/segmentio/ksuid"
	"gitlab.com/grcflow/grcflow/common"
	"gitlab.com/grcflow/grcflow/common/logx"
	"gitlab.com/grcflow/grcflow/common/middleware"
	"gitlab.com/grcflow/grcflow/model"
	"gitlab.com/grcflow/grcflow/server/errors/keys"
	"gitlab.com/grcflow/grcflow/server/messages"
	"gitlab.com/grcflow/grcflow/server/services/natz"
)

// AuditSink records append-only audit events.  Events are never updated or
// deleted once recorded.
type AuditSink interface {
	RecordEvent(ctx context.Context, event *model.AuditEvent) error
}

// KvAuditSink persists audit events in the tenant audit store and broadcasts
// each recorded event on the tenant's audit subject.
type KvAuditSink struct {
	natsService *natz.NatsService
	send        []middleware.Send
}

// NewKvAuditSink constructs a KvAuditSink.  Send middleware runs over each
// broadcast message before it is published.
func NewKvAuditSink(natsService *natz.NatsService, send ...middleware.Send) *KvAuditSink {
	return &KvAuditSink{natsService: natsService, send: send}
}

// RecordEvent assigns the event an id and timestamp if missing, persists it
// and broadcasts it.  A failed broadcast does not fail the record.
func (s *KvAuditSink) RecordEvent(ctx context.Context, event *model.AuditEvent) error {
	if event.Id == "" {
		event.Id = ksuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	kvs, err := s.natsService.KvsFor(ctx, event.TenantId)
	if err != nil {
		return fmt.Errorf("record audit event: obtain tenant stores: %w", err)
	}
	// keyed by target so one prefix search yields a target's full history
	if err := common.SaveObj(ctx, kvs.Audit, event.TargetId+"."+event.Id, event); err != nil {
		return fmt.Errorf("record audit event: %w", err)
	}
	subject := fmt.Sprintf(messages.AuditEventSubject, event.TenantId)
	if err := common.PublishObj(ctx, s.natsService.Conn, subject, event, func(msg *nats.Msg) error {
		for _, i := range s.send {
			if err := i(ctx, msg); err != nil {
				return fmt.Errorf("send middleware: %w", err)
			}
		}
		return nil
	}); err != nil {
		logx.FromContext(ctx).Warn("broadcast audit event", keys.AuditKind, string(event.Kind), "error", err)
	}
	return nil
}
