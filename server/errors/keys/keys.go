package keys

// ContextKey is the wrapper for using context keys
type ContextKey string

const (
	// TenantID is the key for the tenant owning the entity being processed.
	TenantID = "tenant_id"
	// DefinitionID is the key for the process definition ID.
	DefinitionID = "def_id"
	// InstanceID is the key for the unique identifier of the executing process instance.
	InstanceID = "inst_id"
	// TaskID is the key for the task ID within an instance.
	TaskID = "task_id"
	// StepNumber is the key for the ordinal of a definition step.
	StepNumber = "step_no"
	// ActorID is the key for the actor performing an operation.
	ActorID = "actor_id"
	// RoleID is the key for a role being resolved to an actor.
	RoleID = "role_id"
	// State is a key for the description of the current lifecycle state of an entity.
	State = "state"
	// TargetState is a key for the lifecycle state a transition is aiming for.
	TargetState = "target_state"
	// AuditKind is a key for the kind of an emitted audit event.
	AuditKind = "audit_kind"
)
