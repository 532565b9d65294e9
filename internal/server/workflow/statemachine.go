package workflow

import (
	"gitlab.com/grcflow/grcflow/model"
	errors2 "gitlab.com/grcflow/grcflow/server/errors"
)

// instanceTransitions is the legal edge set for process instance statuses.
// Statuses absent from the map are terminal.
var instanceTransitions = map[model.InstanceStatus][]model.InstanceStatus{
	model.InstanceStatusPending:    {model.InstanceStatusInProgress},
	model.InstanceStatusInProgress: {model.InstanceStatusInApproval, model.InstanceStatusCompleted, model.InstanceStatusRejected},
	model.InstanceStatusInApproval: {model.InstanceStatusCompleted, model.InstanceStatusRejected},
	model.InstanceStatusCompleted:  {},
	model.InstanceStatusRejected:   {},
}

// taskTransitions is the legal edge set for task statuses.
var taskTransitions = map[model.TaskStatus][]model.TaskStatus{
	model.TaskStatusPending:    {model.TaskStatusInProgress, model.TaskStatusApproved, model.TaskStatusRejected},
	model.TaskStatusInProgress: {model.TaskStatusApproved, model.TaskStatusRejected},
	model.TaskStatusApproved:   {},
	model.TaskStatusRejected:   {},
}

// CanTransitionInstance reports whether the instance edge from->to exists.
func CanTransitionInstance(from model.InstanceStatus, to model.InstanceStatus) bool {
	for _, t := range instanceTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// ValidInstanceTransitions returns the legal target statuses from an instance status.
func ValidInstanceTransitions(from model.InstanceStatus) []model.InstanceStatus {
	targets := instanceTransitions[from]
	out := make([]model.InstanceStatus, len(targets))
	copy(out, targets)
	return out
}

// CanTransitionTask reports whether the task edge from->to exists.
func CanTransitionTask(from model.TaskStatus, to model.TaskStatus) bool {
	for _, t := range taskTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// ValidTaskTransitions returns the legal target statuses from a task status.
func ValidTaskTransitions(from model.TaskStatus) []model.TaskStatus {
	targets := taskTransitions[from]
	out := make([]model.TaskStatus, len(targets))
	copy(out, targets)
	return out
}

// instanceTransitionError builds the rich transition error for an illegal instance edge.
func instanceTransitionError(from model.InstanceStatus, to model.InstanceStatus) error {
	valid := make([]string, 0)
	for _, t := range instanceTransitions[from] {
		valid = append(valid, string(t))
	}
	return &errors2.ErrInvalidStateTransition{Current: string(from), Target: string(to), Valid: valid}
}

// taskTransitionError builds the rich transition error for an illegal task edge.
func taskTransitionError(from model.TaskStatus, to model.TaskStatus) error {
	valid := make([]string, 0)
	for _, t := range taskTransitions[from] {
		valid = append(valid, string(t))
	}
	return &errors2.ErrInvalidStateTransition{Current: string(from), Target: string(to), Valid: valid}
}
