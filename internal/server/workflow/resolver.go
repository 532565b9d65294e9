package workflow

import (
	"context"
	"errors"
	"strings"

	"github.com/nats-io/nats.go/jetstream"
	"gitlab.com/grcflow/grcflow/common"
	"gitlab.com/grcflow/grcflow/common/expression"
	"gitlab.com/grcflow/grcflow/common/logx"
	"gitlab.com/grcflow/grcflow/model"
	"gitlab.com/grcflow/grcflow/server/errors/keys"
	"gitlab.com/grcflow/grcflow/server/services/natz"
)

// AssigneeResolver maps a step assignment rule to a concrete actor id.
// A rule that cannot be resolved is not an error: the second return value is
// false and the caller skips the step.
type AssigneeResolver interface {
	Resolve(ctx context.Context, tenantId string, rule string, initiatorId string, defaultAssignee string, vars map[string]any) (string, bool)
}

// KvAssigneeResolver resolves assignment rules against the tenant's actor and
// role stores.  Rules carrying the "=" marker are evaluated as expressions
// against the instance variables first; the result is then resolved like a
// literal rule.
type KvAssigneeResolver struct {
	natsService *natz.NatsService
	exprEngine  expression.Engine
}

// NewKvAssigneeResolver constructs a KvAssigneeResolver.
func NewKvAssigneeResolver(natsService *natz.NatsService) *KvAssigneeResolver {
	return &KvAssigneeResolver{
		natsService: natsService,
		exprEngine:  &expression.ExprEngine{},
	}
}

// Resolve maps a rule to an actor id.  Resolution order: expression
// evaluation, explicit actor id, role membership, definition default.  Store
// failures resolve to "unresolved" rather than an error, keeping a bad rule
// from blocking the rest of the instance.
func (r *KvAssigneeResolver) Resolve(ctx context.Context, tenantId string, rule string, initiatorId string, defaultAssignee string, vars map[string]any) (string, bool) {
	ctx, log := logx.ContextWith(ctx, "resolver.Resolve")
	rule = strings.TrimSpace(rule)

	if strings.HasPrefix(rule, "=") {
		if vars == nil {
			vars = make(map[string]any)
		}
		vars["initiator"] = initiatorId
		res, err := expression.Eval[string](ctx, r.exprEngine, rule, vars)
		if err != nil {
			log.Warn("assignee rule expression failed", keys.TenantID, tenantId, "rule", rule, "error", err)
			return "", false
		}
		rule = strings.TrimSpace(res)
	}

	if rule == "" {
		rule = strings.TrimSpace(defaultAssignee)
	}
	if rule == "" {
		return "", false
	}

	kvs, err := r.natsService.KvsFor(ctx, tenantId)
	if err != nil {
		log.Warn("resolve assignee: obtain tenant stores", keys.TenantID, tenantId, "error", err)
		return "", false
	}

	if actorId, ok := r.resolveActor(ctx, kvs, rule); ok {
		return actorId, true
	}
	if actorId, ok := r.resolveRole(ctx, kvs, rule); ok {
		return actorId, true
	}

	log.Warn("assignee rule did not resolve", keys.TenantID, tenantId, "rule", rule)
	return "", false
}

func (r *KvAssigneeResolver) resolveActor(ctx context.Context, kvs *natz.TenantKvs, rule string) (string, bool) {
	actor := &model.Actor{}
	if err := common.LoadObj(ctx, kvs.Actor, rule, actor); err != nil {
		if !errors.Is(err, jetstream.ErrKeyNotFound) {
			logx.FromContext(ctx).Warn("resolve actor", keys.ActorID, rule, "error", err)
		}
		return "", false
	}
	if !actor.Active {
		return "", false
	}
	return actor.Id, true
}

// resolveRole picks the first active member by earliest assignment date.  Ties
// break on actor id so the pick is deterministic.
func (r *KvAssigneeResolver) resolveRole(ctx context.Context, kvs *natz.TenantKvs, rule string) (string, bool) {
	role := &model.Role{}
	if err := common.LoadObj(ctx, kvs.Role, rule, role); err != nil {
		if !errors.Is(err, jetstream.ErrKeyNotFound) {
			logx.FromContext(ctx).Warn("resolve role", keys.RoleID, rule, "error", err)
		}
		return "", false
	}
	var pick *model.RoleMember
	for i := range role.Members {
		m := &role.Members[i]
		if !m.Active {
			continue
		}
		if pick == nil ||
			m.AssignedAt.Before(pick.AssignedAt) ||
			(m.AssignedAt.Equal(pick.AssignedAt) && m.ActorId < pick.ActorId) {
			pick = m
		}
	}
	if pick == nil {
		return "", false
	}
	return pick.ActorId, true
}
