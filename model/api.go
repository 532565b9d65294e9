package model

// StartProcessRequest asks the engine to instantiate a definition.
type StartProcessRequest struct {
	TenantId     string `json:"tenantId"`
	DefinitionId string `json:"definitionId"`
	InitiatorId  string `json:"initiatorId"`
	Variables    []byte `json:"variables,omitempty"`
}

// StartProcessResponse returns the created instance including its task list.
type StartProcessResponse struct {
	Instance *ProcessInstance `json:"instance"`
}

// InstanceTransitionRequest covers approve, reject and complete calls against an instance.
type InstanceTransitionRequest struct {
	TenantId   string `json:"tenantId"`
	InstanceId string `json:"instanceId"`
	ActorId    string `json:"actorId,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// InstanceTransitionResponse acknowledges a successful instance transition.
type InstanceTransitionResponse struct {
	Status InstanceStatus `json:"status"`
}

// CompleteTaskRequest marks a task complete on behalf of an actor.
type CompleteTaskRequest struct {
	TenantId string `json:"tenantId"`
	TaskId   string `json:"taskId"`
	ActorId  string `json:"actorId"`
	Output   []byte `json:"output,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// CompleteTaskResponse acknowledges a completed task and reports the
// instance status after completion evaluation.
type CompleteTaskResponse struct {
	TaskStatus     TaskStatus     `json:"taskStatus"`
	InstanceStatus InstanceStatus `json:"instanceStatus"`
}

// GetInstanceRequest fetches one instance with its tasks.
type GetInstanceRequest struct {
	TenantId   string `json:"tenantId"`
	InstanceId string `json:"instanceId"`
}

// GetInstanceResponse carries the instance read model.
type GetInstanceResponse struct {
	Instance *ProcessInstance `json:"instance"`
}

// GetTasksRequest fetches the task list of one instance.
type GetTasksRequest struct {
	TenantId   string `json:"tenantId"`
	InstanceId string `json:"instanceId"`
}

// GetTasksResponse carries the task read models.
type GetTasksResponse struct {
	Tasks []TaskInstance `json:"tasks"`
}

// ListInstancesRequest fetches all instances of a tenant.
type ListInstancesRequest struct {
	TenantId string `json:"tenantId"`
}

// ListInstancesResponse carries the instance read models.
type ListInstancesResponse struct {
	Instances []ProcessInstance `json:"instances"`
}

// GetStatisticsRequest fetches the per-tenant aggregates.
type GetStatisticsRequest struct {
	TenantId string `json:"tenantId"`
}

// GetStatisticsResponse carries the per-tenant aggregates.
type GetStatisticsResponse struct {
	Statistics *TenantStatistics `json:"statistics"`
}

// StoreDefinitionRequest stores or replaces a process definition.
type StoreDefinitionRequest struct {
	Definition *ProcessDefinition `json:"definition"`
}

// StoreDefinitionResponse returns the id the definition was stored under.
type StoreDefinitionResponse struct {
	DefinitionId string `json:"definitionId"`
}

// GetDefinitionRequest fetches a stored definition.
type GetDefinitionRequest struct {
	TenantId     string `json:"tenantId"`
	DefinitionId string `json:"definitionId"`
}

// GetDefinitionResponse carries the stored definition.
type GetDefinitionResponse struct {
	Definition *ProcessDefinition `json:"definition"`
}

// GetVersionInfoRequest asks the server for version compatibility information.
type GetVersionInfoRequest struct {
	ClientVersion string `json:"clientVersion"`
}

// GetVersionInfoResponse reports the server version and compatibility verdict.
type GetVersionInfoResponse struct {
	ServerVersion        string `json:"serverVersion"`
	MinCompatibleVersion string `json:"minCompatibleVersion"`
	Connect              bool   `json:"connect"`
}
