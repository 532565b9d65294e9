package api

import (
	"context"
	"fmt"

	version2 "github.com/hashicorp/go-version"
	"gitlab.com/grcflow/grcflow/common/ctxkey"
	"gitlab.com/grcflow/grcflow/common/version"
	"gitlab.com/grcflow/grcflow/model"
)

func (s *Endpoints) storeDefinition(ctx context.Context, req *model.StoreDefinitionRequest) (*model.StoreDefinitionResponse, error) {
	id, err := s.operations.StoreDefinition(ctx, req.Definition)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", ctx.Value(ctxkey.APIFunc), err)
	}
	return &model.StoreDefinitionResponse{DefinitionId: id}, nil
}

func (s *Endpoints) getDefinition(ctx context.Context, req *model.GetDefinitionRequest) (*model.GetDefinitionResponse, error) {
	def, err := s.operations.GetDefinition(ctx, req.TenantId, req.DefinitionId)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", ctx.Value(ctxkey.APIFunc), err)
	}
	return &model.GetDefinitionResponse{Definition: def}, nil
}

func (s *Endpoints) startProcess(ctx context.Context, req *model.StartProcessRequest) (*model.StartProcessResponse, error) {
	instance, err := s.operations.StartProcess(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", ctx.Value(ctxkey.APIFunc), err)
	}
	return &model.StartProcessResponse{Instance: instance}, nil
}

func (s *Endpoints) approveInstance(ctx context.Context, req *model.InstanceTransitionRequest) (*model.InstanceTransitionResponse, error) {
	status, err := s.operations.ApproveInstance(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", ctx.Value(ctxkey.APIFunc), err)
	}
	return &model.InstanceTransitionResponse{Status: status}, nil
}

func (s *Endpoints) rejectInstance(ctx context.Context, req *model.InstanceTransitionRequest) (*model.InstanceTransitionResponse, error) {
	status, err := s.operations.RejectInstance(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", ctx.Value(ctxkey.APIFunc), err)
	}
	return &model.InstanceTransitionResponse{Status: status}, nil
}

func (s *Endpoints) completeInstance(ctx context.Context, req *model.InstanceTransitionRequest) (*model.InstanceTransitionResponse, error) {
	status, err := s.operations.CompleteInstance(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", ctx.Value(ctxkey.APIFunc), err)
	}
	return &model.InstanceTransitionResponse{Status: status}, nil
}

func (s *Endpoints) completeTask(ctx context.Context, req *model.CompleteTaskRequest) (*model.CompleteTaskResponse, error) {
	res, err := s.operations.CompleteTask(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", ctx.Value(ctxkey.APIFunc), err)
	}
	return res, nil
}

func (s *Endpoints) getInstance(ctx context.Context, req *model.GetInstanceRequest) (*model.GetInstanceResponse, error) {
	instance, err := s.operations.GetInstance(ctx, req.TenantId, req.InstanceId)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", ctx.Value(ctxkey.APIFunc), err)
	}
	return &model.GetInstanceResponse{Instance: instance}, nil
}

func (s *Endpoints) getTasks(ctx context.Context, req *model.GetTasksRequest) (*model.GetTasksResponse, error) {
	tasks, err := s.operations.GetTasks(ctx, req.TenantId, req.InstanceId)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", ctx.Value(ctxkey.APIFunc), err)
	}
	return &model.GetTasksResponse{Tasks: tasks}, nil
}

func (s *Endpoints) listInstances(ctx context.Context, req *model.ListInstancesRequest) (*model.ListInstancesResponse, error) {
	instances, err := s.operations.ListInstances(ctx, req.TenantId)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", ctx.Value(ctxkey.APIFunc), err)
	}
	return &model.ListInstancesResponse{Instances: instances}, nil
}

func (s *Endpoints) getStatistics(ctx context.Context, req *model.GetStatisticsRequest) (*model.GetStatisticsResponse, error) {
	stats, err := s.operations.GetStatistics(ctx, req.TenantId)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", ctx.Value(ctxkey.APIFunc), err)
	}
	return &model.GetStatisticsResponse{Statistics: stats}, nil
}

func (s *Endpoints) versionInfo(_ context.Context, req *model.GetVersionInfoRequest) (*model.GetVersionInfoResponse, error) {
	connect := true
	if req.ClientVersion != "" {
		clientVersion, err := version2.NewVersion(req.ClientVersion)
		connect = err == nil && !clientVersion.LessThan(version.MinCompatibleVersion)
	}
	return &model.GetVersionInfoResponse{
		ServerVersion:        version.Version,
		MinCompatibleVersion: version.MinCompatibleVersion.String(),
		Connect:              connect,
	}, nil
}
