package model

// InstanceStatus is the lifecycle state of a process instance.
type InstanceStatus string

const (
	// InstanceStatusPending - the instance has been created but not yet started.
	InstanceStatusPending InstanceStatus = "Pending"
	// InstanceStatusInProgress - the instance is running and has open tasks.
	InstanceStatusInProgress InstanceStatus = "InProgress"
	// InstanceStatusInApproval - the instance work is done and awaits a final approval decision.
	InstanceStatusInApproval InstanceStatus = "InApproval"
	// InstanceStatusCompleted - terminal, the instance finished successfully.
	InstanceStatusCompleted InstanceStatus = "Completed"
	// InstanceStatusRejected - terminal, the instance was rejected.
	InstanceStatusRejected InstanceStatus = "Rejected"
)

// TaskStatus is the lifecycle state of a task instance.
type TaskStatus string

const (
	// TaskStatusPending - the task has been created and awaits work.
	TaskStatusPending TaskStatus = "Pending"
	// TaskStatusInProgress - the task has been picked up by its assignee.
	TaskStatusInProgress TaskStatus = "InProgress"
	// TaskStatusApproved - terminal, the task was completed successfully.
	TaskStatusApproved TaskStatus = "Approved"
	// TaskStatusRejected - terminal, the task was rejected.
	TaskStatusRejected TaskStatus = "Rejected"
)

// StepKind discriminates definition step nodes.
type StepKind string

const (
	// StepKindStart marks the entry node of a definition.
	StepKindStart StepKind = "Start"
	// StepKindTask marks a work step.  Only these materialize as tasks.
	StepKindTask StepKind = "Task"
	// StepKindEnd marks the exit node of a definition.
	StepKindEnd StepKind = "End"
)

// AuditKind is the type discriminator of an audit event.
type AuditKind string

const (
	// AuditInstanceStarted records the creation and start of an instance.
	AuditInstanceStarted AuditKind = "InstanceStarted"
	// AuditApprovalApproved records an explicit instance approval.
	AuditApprovalApproved AuditKind = "ApprovalApproved"
	// AuditApprovalRejected records an explicit instance rejection.
	AuditApprovalRejected AuditKind = "ApprovalRejected"
	// AuditInstanceCompleted records an instance reaching Completed.
	AuditInstanceCompleted AuditKind = "InstanceCompleted"
	// AuditInstanceRejected records an instance reaching Rejected through completion evaluation.
	AuditInstanceRejected AuditKind = "InstanceRejected"
	// AuditTaskCompleted records a task reaching Approved.
	AuditTaskCompleted AuditKind = "TaskCompleted"
	// AuditDefinitionStored records a definition write.
	AuditDefinitionStored AuditKind = "DefinitionStored"
)
