package model

import "time"

// ProcessStep is one node in a process definition.  Only StepKindTask steps
// produce runtime work.
type ProcessStep struct {
	Id                string   `json:"id"`
	Name              string   `json:"name"`
	Kind              StepKind `json:"kind"`
	Sequence          int      `json:"sequence"`
	AssigneeRule      string   `json:"assigneeRule"`
	DueDateOffsetDays int      `json:"dueDateOffsetDays,omitempty"`
	Priority          int      `json:"priority"`
	Description       string   `json:"description,omitempty"`
}

// ProcessDefinition is a named template describing an ordered set of steps.
// A definition is immutable once referenced by a running instance: changes
// are published under a new definition id.
type ProcessDefinition struct {
	Id              string    `json:"id"`
	Name            string    `json:"name"`
	TenantId        string    `json:"tenantId,omitempty"`
	Active          bool      `json:"active"`
	DefaultAssignee string    `json:"defaultAssignee,omitempty"`
	RawDefinition   []byte    `json:"rawDefinition,omitempty"`
	StepsJson       []byte    `json:"stepsJson,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// TaskInstance is one unit of assigned work belonging to a process instance.
type TaskInstance struct {
	Id          string     `json:"id"`
	TenantId    string     `json:"tenantId"`
	InstanceId  string     `json:"instanceId"`
	StepId      string     `json:"stepId"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Sequence    int        `json:"sequence"`
	AssigneeId  string     `json:"assigneeId"`
	Status      TaskStatus `json:"status"`
	Priority    int        `json:"priority"`
	AssignedAt  time.Time  `json:"assignedAt"`
	DueAt       *time.Time `json:"dueAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CompletedBy string     `json:"completedBy,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	Output      []byte     `json:"output,omitempty"`
}

// ProcessInstance is one running execution of a definition for a tenant.
// Tasks are embedded so the instance and its task set persist as one unit.
type ProcessInstance struct {
	Id           string         `json:"id"`
	TenantId     string         `json:"tenantId"`
	DefinitionId string         `json:"definitionId"`
	Status       InstanceStatus `json:"status"`
	InitiatorId  string         `json:"initiatorId"`
	Variables    []byte         `json:"variables,omitempty"`
	Tasks        []TaskInstance `json:"tasks"`
	StartedAt    time.Time      `json:"startedAt"`
	CompletedAt  *time.Time     `json:"completedAt,omitempty"`
	CompletedBy  string         `json:"completedBy,omitempty"`
}

// Task returns the embedded task with the given id, or nil.
func (pi *ProcessInstance) Task(taskId string) *TaskInstance {
	for i := range pi.Tasks {
		if pi.Tasks[i].Id == taskId {
			return &pi.Tasks[i]
		}
	}
	return nil
}

// AuditEvent is an append-only record of a state mutation.  Events are never
// updated or deleted.
type AuditEvent struct {
	Id          string    `json:"id"`
	TenantId    string    `json:"tenantId"`
	TargetId    string    `json:"targetId"`
	Kind        AuditKind `json:"kind"`
	PriorStatus string    `json:"priorStatus"`
	ActorId     string    `json:"actorId,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// RoleMember is one actor's membership of a role.
type RoleMember struct {
	ActorId    string    `json:"actorId"`
	Active     bool      `json:"active"`
	AssignedAt time.Time `json:"assignedAt"`
}

// Role maps a role name to its member actors within a tenant.
type Role struct {
	Name    string       `json:"name"`
	Members []RoleMember `json:"members"`
}

// Actor is a minimal identity record used by assignee resolution.
type Actor struct {
	Id     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Active bool   `json:"active"`
}

// TenantStatistics is the per-tenant aggregate read model.
type TenantStatistics struct {
	TenantId               string  `json:"tenantId"`
	TotalInstances         int     `json:"totalInstances"`
	PendingInstances       int     `json:"pendingInstances"`
	ActiveInstances        int     `json:"activeInstances"`
	CompletedInstances     int     `json:"completedInstances"`
	RejectedInstances      int     `json:"rejectedInstances"`
	AverageCompletionHours float64 `json:"averageCompletionHours"`
}
