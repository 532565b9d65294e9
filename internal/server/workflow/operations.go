// Package workflow implements the process orchestration engine: definition
// parsing and storage, instance and task lifecycle, completion evaluation,
// assignee resolution and audit emission.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/segmentio/ksuid"
	"gitlab.com/grcflow/grcflow/common"
	"gitlab.com/grcflow/grcflow/common/cache"
	"gitlab.com/grcflow/grcflow/common/logx"
	"gitlab.com/grcflow/grcflow/internal/parser"
	"gitlab.com/grcflow/grcflow/model"
	errors2 "gitlab.com/grcflow/grcflow/server/errors"
	"gitlab.com/grcflow/grcflow/server/errors/keys"
	"gitlab.com/grcflow/grcflow/server/services/natz"
)

const (
	// DefinitionCacheTTL is the sliding lifetime of cached parsed definitions.
	DefinitionCacheTTL = 10 * time.Minute
	// StatisticsCacheTTL is the absolute lifetime of cached tenant statistics.
	StatisticsCacheTTL = 2 * time.Minute
)

// parsedDefinition pairs a stored definition with its parsed step list.
type parsedDefinition struct {
	Def   *model.ProcessDefinition
	Steps []model.ProcessStep
}

// Operations composes the orchestration engine over the tenant KV stores.
type Operations struct {
	natsService *natz.NatsService
	resolver    AssigneeResolver
	auditSink   AuditSink
	defCache    cache.Backend
	statsCache  cache.Backend
}

// NewOperations constructs the orchestration engine.
func NewOperations(natsService *natz.NatsService, resolver AssigneeResolver, auditSink AuditSink, defCache cache.Backend, statsCache cache.Backend) *Operations {
	return &Operations{
		natsService: natsService,
		resolver:    resolver,
		auditSink:   auditSink,
		defCache:    defCache,
		statsCache:  statsCache,
	}
}

func defCacheKey(tenantId string, definitionId string) string {
	return tenantId + "|" + definitionId
}

func statsCacheKey(tenantId string) string {
	return "stats|" + tenantId
}

// StoreDefinition stores a process definition under the tenant (or the global
// scope when the definition carries no tenant) and invalidates any cached
// parse of it.
func (o *Operations) StoreDefinition(ctx context.Context, def *model.ProcessDefinition) (string, error) {
	if def.Id == "" {
		def.Id = ksuid.New().String()
	}
	if def.CreatedAt.IsZero() {
		def.CreatedAt = time.Now().UTC()
	}
	meta := parser.Meta(ctx, def.RawDefinition)
	if def.Name == "" {
		def.Name = meta.Name
	}
	if def.DefaultAssignee == "" {
		def.DefaultAssignee = meta.DefaultAssignee
	}
	if meta.Created != nil {
		def.CreatedAt = *meta.Created
	}
	seen := make(map[int]struct{})
	for _, step := range parser.Parse(ctx, def) {
		if _, dup := seen[step.Sequence]; dup {
			return "", fmt.Errorf("store definition %s: sequence %d: %w", def.Id, step.Sequence, errors2.ErrDuplicateStepSequence)
		}
		seen[step.Sequence] = struct{}{}
	}
	kvs, err := o.natsService.KvsFor(ctx, def.TenantId)
	if err != nil {
		return "", fmt.Errorf("store definition: obtain tenant stores: %w", err)
	}
	if err := common.SaveObj(ctx, kvs.Definition, def.Id, def); err != nil {
		return "", fmt.Errorf("store definition: %w", err)
	}
	o.defCache.Delete(defCacheKey(def.TenantId, def.Id))
	o.recordAudit(ctx, &model.AuditEvent{
		TenantId: def.TenantId,
		TargetId: def.Id,
		Kind:     model.AuditDefinitionStored,
		Detail:   fmt.Sprintf("Definition %q stored", def.Name),
	})
	return def.Id, nil
}

// GetDefinition loads a stored definition for the tenant, falling back to the
// global scope when the tenant holds none.
func (o *Operations) GetDefinition(ctx context.Context, tenantId string, definitionId string) (*model.ProcessDefinition, error) {
	kvs, err := o.natsService.KvsFor(ctx, tenantId)
	if err != nil {
		return nil, fmt.Errorf("get definition: obtain tenant stores: %w", err)
	}
	def := &model.ProcessDefinition{}
	err = common.LoadObj(ctx, kvs.Definition, definitionId, def)
	if errors.Is(err, jetstream.ErrKeyNotFound) && tenantId != "" {
		var gkvs *natz.TenantKvs
		gkvs, err = o.natsService.KvsFor(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("get definition: obtain global stores: %w", err)
		}
		err = common.LoadObj(ctx, gkvs.Definition, definitionId, def)
	}
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, fmt.Errorf("get definition %s: %w", definitionId, errors2.ErrDefinitionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get definition: %w", err)
	}
	return def, nil
}

// loadDefinition returns the parsed definition through the definition cache.
func (o *Operations) loadDefinition(ctx context.Context, tenantId string, definitionId string) (*parsedDefinition, error) {
	pd, err := cache.Cacheable(defCacheKey(tenantId, definitionId), func() (*parsedDefinition, error) {
		def, err := o.GetDefinition(ctx, tenantId, definitionId)
		if err != nil {
			return nil, err
		}
		return &parsedDefinition{Def: def, Steps: parser.Parse(ctx, def)}, nil
	}, o.defCache)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	return pd, nil
}

// StartProcess instantiates a definition: the instance starts in Pending,
// immediately transitions to InProgress, and one task is created per
// resolvable Task step.  An unresolvable assignee skips the step rather than
// failing the start.
func (o *Operations) StartProcess(ctx context.Context, req *model.StartProcessRequest) (*model.ProcessInstance, error) {
	ctx, log := logx.ContextWith(ctx, "engine.StartProcess")

	pd, err := o.loadDefinition(ctx, req.TenantId, req.DefinitionId)
	if err != nil {
		return nil, err
	}
	if !pd.Def.Active {
		return nil, fmt.Errorf("start process %s: %w", req.DefinitionId, errors2.ErrDefinitionInactive)
	}

	now := time.Now().UTC()
	instance := &model.ProcessInstance{
		Id:           ksuid.New().String(),
		TenantId:     req.TenantId,
		DefinitionId: pd.Def.Id,
		Status:       model.InstanceStatusPending,
		InitiatorId:  req.InitiatorId,
		Variables:    req.Variables,
		Tasks:        []model.TaskInstance{},
		StartedAt:    now,
	}
	if !CanTransitionInstance(instance.Status, model.InstanceStatusInProgress) {
		return nil, instanceTransitionError(instance.Status, model.InstanceStatusInProgress)
	}
	instance.Status = model.InstanceStatusInProgress

	vars := model.NewVars()
	if err := vars.Decode(ctx, req.Variables); err != nil {
		log.Warn("decode instance variables", keys.InstanceID, instance.Id, "error", err)
	}

	for _, step := range pd.Steps {
		if step.Kind != model.StepKindTask {
			continue
		}
		actorId, ok := o.resolver.Resolve(ctx, req.TenantId, step.AssigneeRule, req.InitiatorId, pd.Def.DefaultAssignee, vars.Vals)
		if !ok {
			log.Warn("skipping step with unresolved assignee", keys.InstanceID, instance.Id, keys.StepNumber, step.Sequence, "rule", step.AssigneeRule)
			continue
		}
		task := model.TaskInstance{
			Id:          ksuid.New().String(),
			TenantId:    req.TenantId,
			InstanceId:  instance.Id,
			StepId:      step.Id,
			Name:        step.Name,
			Description: step.Description,
			Sequence:    step.Sequence,
			AssigneeId:  actorId,
			Status:      model.TaskStatusPending,
			Priority:    step.Priority,
			AssignedAt:  now,
		}
		if step.DueDateOffsetDays > 0 {
			due := now.AddDate(0, 0, step.DueDateOffsetDays)
			task.DueAt = &due
		}
		instance.Tasks = append(instance.Tasks, task)
	}

	common.Dump(ctx, "assembled instance", instance)

	kvs, err := o.natsService.KvsFor(ctx, req.TenantId)
	if err != nil {
		return nil, fmt.Errorf("start process: obtain tenant stores: %w", err)
	}
	// index entries go first: an orphaned index entry is unreachable noise,
	// whereas an instance with unindexed tasks could never be completed
	for _, task := range instance.Tasks {
		if err := common.Save(ctx, kvs.TaskIndex, task.Id, []byte(instance.Id)); err != nil {
			return nil, fmt.Errorf("start process: persist task index: %w", err)
		}
	}
	if err := common.SaveObj(ctx, kvs.Instance, instance.Id, instance); err != nil {
		return nil, fmt.Errorf("start process: persist instance: %w", err)
	}

	o.recordAudit(ctx, &model.AuditEvent{
		TenantId:    req.TenantId,
		TargetId:    instance.Id,
		Kind:        model.AuditInstanceStarted,
		PriorStatus: string(model.InstanceStatusPending),
		ActorId:     req.InitiatorId,
		Detail:      fmt.Sprintf("Process started with %d task(s)", len(instance.Tasks)),
	})
	o.statsCache.Delete(statsCacheKey(req.TenantId))

	log.Info("process started", keys.InstanceID, instance.Id, keys.DefinitionID, pd.Def.Id, "tasks", len(instance.Tasks))
	return instance, nil
}

// GetInstance loads one instance with its embedded tasks.
func (o *Operations) GetInstance(ctx context.Context, tenantId string, instanceId string) (*model.ProcessInstance, error) {
	kvs, err := o.natsService.KvsFor(ctx, tenantId)
	if err != nil {
		return nil, fmt.Errorf("get instance: obtain tenant stores: %w", err)
	}
	instance := &model.ProcessInstance{}
	if err := common.LoadObj(ctx, kvs.Instance, instanceId, instance); err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, fmt.Errorf("get instance %s: %w", instanceId, errors2.ErrInstanceNotFound)
		}
		return nil, fmt.Errorf("get instance: %w", err)
	}
	return instance, nil
}

// GetTasks returns the tasks of an instance ordered by sequence.  A missing
// instance yields an empty list.
func (o *Operations) GetTasks(ctx context.Context, tenantId string, instanceId string) ([]model.TaskInstance, error) {
	instance, err := o.GetInstance(ctx, tenantId, instanceId)
	if errors.Is(err, errors2.ErrInstanceNotFound) {
		return []model.TaskInstance{}, nil
	}
	if err != nil {
		return nil, err
	}
	tasks := make([]model.TaskInstance, len(instance.Tasks))
	copy(tasks, instance.Tasks)
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].Sequence < tasks[j].Sequence })
	return tasks, nil
}

// ListInstances returns all instances of a tenant, most recently started first.
func (o *Operations) ListInstances(ctx context.Context, tenantId string) ([]model.ProcessInstance, error) {
	kvs, err := o.natsService.KvsFor(ctx, tenantId)
	if err != nil {
		return nil, fmt.Errorf("list instances: obtain tenant stores: %w", err)
	}
	ids, err := common.KvKeys(ctx, kvs.Instance)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	instances := make([]model.ProcessInstance, 0, len(ids))
	for _, id := range ids {
		instance := model.ProcessInstance{}
		if err := common.LoadObj(ctx, kvs.Instance, id, &instance); err != nil {
			if errors.Is(err, jetstream.ErrKeyNotFound) {
				continue
			}
			return nil, fmt.Errorf("list instances: %w", err)
		}
		instances = append(instances, instance)
	}
	sort.SliceStable(instances, func(i, j int) bool { return instances[i].StartedAt.After(instances[j].StartedAt) })
	return instances, nil
}

// ApproveInstance moves an instance into approval.  The transition is
// validated against the state machine and an illegal request carries the
// legal targets back to the caller.
func (o *Operations) ApproveInstance(ctx context.Context, req *model.InstanceTransitionRequest) (model.InstanceStatus, error) {
	detail := fmt.Sprintf("Instance approved by %s. Reason: %s", req.ActorId, req.Reason)
	return o.transitionInstance(ctx, req, model.InstanceStatusInApproval, model.AuditApprovalApproved, detail)
}

// RejectInstance rejects an instance terminally.
func (o *Operations) RejectInstance(ctx context.Context, req *model.InstanceTransitionRequest) (model.InstanceStatus, error) {
	detail := fmt.Sprintf("Instance rejected by %s. Reason: %s", req.ActorId, req.Reason)
	return o.transitionInstance(ctx, req, model.InstanceStatusRejected, model.AuditApprovalRejected, detail)
}

// CompleteInstance completes an instance terminally.
func (o *Operations) CompleteInstance(ctx context.Context, req *model.InstanceTransitionRequest) (model.InstanceStatus, error) {
	return o.transitionInstance(ctx, req, model.InstanceStatusCompleted, model.AuditInstanceCompleted, "Instance completed")
}

func isTerminalInstanceStatus(s model.InstanceStatus) bool {
	return s == model.InstanceStatusCompleted || s == model.InstanceStatusRejected
}

func (o *Operations) transitionInstance(ctx context.Context, req *model.InstanceTransitionRequest, target model.InstanceStatus, kind model.AuditKind, detail string) (model.InstanceStatus, error) {
	ctx, log := logx.ContextWith(ctx, "engine.transitionInstance")
	kvs, err := o.natsService.KvsFor(ctx, req.TenantId)
	if err != nil {
		return "", fmt.Errorf("transition instance: obtain tenant stores: %w", err)
	}

	var prior model.InstanceStatus
	err = common.UpdateObj(ctx, kvs.Instance, req.InstanceId, model.ProcessInstance{}, func(pi model.ProcessInstance) (model.ProcessInstance, error) {
		if !CanTransitionInstance(pi.Status, target) {
			return pi, instanceTransitionError(pi.Status, target)
		}
		prior = pi.Status
		pi.Status = target
		if isTerminalInstanceStatus(target) {
			now := time.Now().UTC()
			pi.CompletedAt = &now
			if req.ActorId != "" {
				pi.CompletedBy = req.ActorId
			}
		}
		return pi, nil
	})
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return "", fmt.Errorf("transition instance %s: %w", req.InstanceId, errors2.ErrInstanceNotFound)
		}
		return "", fmt.Errorf("transition instance: %w", err)
	}

	o.recordAudit(ctx, &model.AuditEvent{
		TenantId:    req.TenantId,
		TargetId:    req.InstanceId,
		Kind:        kind,
		PriorStatus: string(prior),
		ActorId:     req.ActorId,
		Detail:      detail,
	})
	o.statsCache.Delete(statsCacheKey(req.TenantId))

	log.Info("instance transitioned", keys.InstanceID, req.InstanceId, keys.State, string(prior), keys.TargetState, string(target))
	return target, nil
}

// CompleteTask marks a task Approved, runs completion evaluation against the
// owning instance's task set, and persists task and instance together.  A
// revision conflict reruns the whole read-modify-evaluate cycle against fresh
// state, since the task counts feeding the evaluation may themselves be stale.
func (o *Operations) CompleteTask(ctx context.Context, req *model.CompleteTaskRequest) (*model.CompleteTaskResponse, error) {
	ctx, log := logx.ContextWith(ctx, "engine.CompleteTask")
	kvs, err := o.natsService.KvsFor(ctx, req.TenantId)
	if err != nil {
		return nil, fmt.Errorf("complete task: obtain tenant stores: %w", err)
	}

	instanceRef, err := common.Load(ctx, kvs.TaskIndex, req.TaskId)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, fmt.Errorf("complete task %s: %w", req.TaskId, errors2.ErrTaskNotFound)
		}
		return nil, fmt.Errorf("complete task: resolve owning instance: %w", err)
	}
	instanceId := string(instanceRef)

	var events []*model.AuditEvent
	var instanceStatus model.InstanceStatus
	err = common.UpdateObj(ctx, kvs.Instance, instanceId, model.ProcessInstance{}, func(pi model.ProcessInstance) (model.ProcessInstance, error) {
		events = events[:0]
		task := pi.Task(req.TaskId)
		if task == nil {
			return pi, fmt.Errorf("complete task %s: %w", req.TaskId, errors2.ErrTaskNotFound)
		}
		if !CanTransitionTask(task.Status, model.TaskStatusApproved) {
			return pi, taskTransitionError(task.Status, model.TaskStatusApproved)
		}
		prior := task.Status
		now := time.Now().UTC()
		task.Status = model.TaskStatusApproved
		task.CompletedAt = &now
		task.CompletedBy = req.ActorId
		task.Notes = req.Notes
		task.Output = req.Output

		events = append(events, &model.AuditEvent{
			TenantId:    req.TenantId,
			TargetId:    task.Id,
			Kind:        model.AuditTaskCompleted,
			PriorStatus: string(prior),
			ActorId:     req.ActorId,
			Detail:      fmt.Sprintf("Task completed by %s", req.ActorId),
		})

		o.evaluateCompletion(ctx, &pi, &events)
		instanceStatus = pi.Status
		return pi, nil
	})
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, fmt.Errorf("complete task %s: %w", req.TaskId, errors2.ErrInstanceNotFound)
		}
		return nil, fmt.Errorf("complete task: %w", err)
	}

	for _, event := range events {
		o.recordAudit(ctx, event)
	}
	o.statsCache.Delete(statsCacheKey(req.TenantId))

	log.Info("task completed", keys.TaskID, req.TaskId, keys.InstanceID, instanceId, keys.State, string(instanceStatus))
	return &model.CompleteTaskResponse{
		TaskStatus:     model.TaskStatusApproved,
		InstanceStatus: instanceStatus,
	}, nil
}

// evaluateCompletion decides whether the instance should terminate based on
// its task set.  Any rejection, once no work remains open, rejects the whole
// instance regardless of how many other tasks were approved.  This path runs
// as a side effect of a task mutation that already succeeded, so an
// unexpected instance state logs and takes no action rather than failing.
func (o *Operations) evaluateCompletion(ctx context.Context, pi *model.ProcessInstance, events *[]*model.AuditEvent) {
	log := logx.FromContext(ctx)
	var open, rejected, approved int
	for i := range pi.Tasks {
		switch pi.Tasks[i].Status {
		case model.TaskStatusPending, model.TaskStatusInProgress:
			open++
		case model.TaskStatusRejected:
			rejected++
		case model.TaskStatusApproved:
			approved++
		}
	}

	prior := pi.Status

	if rejected > 0 && open == 0 {
		if !CanTransitionInstance(pi.Status, model.InstanceStatusRejected) {
			log.Warn("completion evaluation cannot reject instance", keys.InstanceID, pi.Id, keys.State, string(pi.Status))
			return
		}
		now := time.Now().UTC()
		pi.Status = model.InstanceStatusRejected
		pi.CompletedAt = &now
		*events = append(*events, &model.AuditEvent{
			TenantId:    pi.TenantId,
			TargetId:    pi.Id,
			Kind:        model.AuditInstanceRejected,
			PriorStatus: string(prior),
			Detail:      fmt.Sprintf("Instance rejected: %d task(s) were rejected", rejected),
		})
		return
	}

	if open == 0 && len(pi.Tasks) > 0 {
		if !CanTransitionInstance(pi.Status, model.InstanceStatusCompleted) {
			log.Warn("completion evaluation cannot complete instance", keys.InstanceID, pi.Id, keys.State, string(pi.Status))
			return
		}
		now := time.Now().UTC()
		pi.Status = model.InstanceStatusCompleted
		pi.CompletedAt = &now
		pi.CompletedBy = pi.InitiatorId
		*events = append(*events, &model.AuditEvent{
			TenantId:    pi.TenantId,
			TargetId:    pi.Id,
			Kind:        model.AuditInstanceCompleted,
			PriorStatus: string(prior),
			Detail:      fmt.Sprintf("Instance completed successfully with %d approved task(s)", approved),
		})
		return
	}

	log.Debug("completion evaluation: instance continues", keys.InstanceID, pi.Id, "open", open)
}

// recordAudit emits one audit event.  A failed emission is logged rather than
// failing the mutation it pairs with, which has already been persisted.
func (o *Operations) recordAudit(ctx context.Context, event *model.AuditEvent) {
	if err := o.auditSink.RecordEvent(ctx, event); err != nil {
		logx.FromContext(ctx).Error("record audit event", keys.AuditKind, string(event.Kind), keys.TenantID, event.TenantId, "error", err)
	}
}
