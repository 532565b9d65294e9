package server_test

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/grcflow/grcflow/internal"
	"gitlab.com/grcflow/grcflow/model"
	"gitlab.com/grcflow/grcflow/server/messages"
	zensvr "gitlab.com/grcflow/grcflow/zen/server"
	"google.golang.org/grpc/codes"
)

const testDefinition = `
<process name="vendor-review" defaultAssignee="reviewer">
  <step id="start" kind="start" sequence="0" name="Start"/>
  <step id="collect" kind="task" sequence="1" name="Collect evidence" dueInDays="3"/>
  <step id="review" kind="task" sequence="2" name="Review evidence"><assignee>approver</assignee></step>
  <step id="end" kind="end" sequence="3" name="End"/>
</process>`

type apiErr struct {
	code    codes.Code
	message string
}

func (e *apiErr) Error() string {
	return fmt.Sprintf("api error %d: %s", e.code, e.message)
}

// request performs one JSON request/reply call against the API, decoding the
// error envelope if one comes back.
func request[U any](t *testing.T, nc *nats.Conn, subject string, req any) (*U, error) {
	t.Helper()
	b, err := json.Marshal(req)
	require.NoError(t, err)
	msg, err := nc.Request(subject, b, 20*time.Second)
	require.NoError(t, err)
	if strings.HasPrefix(string(msg.Data), internal.ErrorPrefix) {
		parts := strings.SplitN(string(msg.Data[len(internal.ErrorPrefix):]), internal.ErrorSeparator, 2)
		code, err := strconv.Atoi(parts[0])
		require.NoError(t, err)
		return nil, &apiErr{code: codes.Code(code), message: parts[1]}
	}
	res := new(U)
	require.NoError(t, json.Unmarshal(msg.Data, res))
	return res, nil
}

func seedActor(t *testing.T, js jetstream.JetStream, tenantId string, actorId string) {
	t.Helper()
	ctx := context.Background()
	kv, err := js.KeyValue(ctx, messages.TenantBucket(messages.KvActor, tenantId))
	require.NoError(t, err)
	b, err := json.Marshal(&model.Actor{Id: actorId, Name: actorId, Active: true})
	require.NoError(t, err)
	_, err = kv.Put(ctx, actorId, b)
	require.NoError(t, err)
}

func TestProcessLifecycleOverNats(t *testing.T) {
	ssvr, nsvr, err := zensvr.GetServers("127.0.0.1", -1)
	require.NoError(t, err)
	t.Cleanup(ssvr.Shutdown)
	t.Cleanup(nsvr.Shutdown)

	nc, err := nats.Connect(nsvr.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	js, err := jetstream.New(nc)
	require.NoError(t, err)

	tenant := "acme"

	// Storing the definition creates the tenant's buckets as a side effect,
	// so the actors can be seeded afterwards.
	stored, err := request[model.StoreDefinitionResponse](t, nc, messages.APIStoreDefinition, &model.StoreDefinitionRequest{
		Definition: &model.ProcessDefinition{
			TenantId:      tenant,
			Active:        true,
			RawDefinition: []byte(testDefinition),
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, stored.DefinitionId)

	seedActor(t, js, tenant, "reviewer")
	seedActor(t, js, tenant, "approver")

	def, err := request[model.GetDefinitionResponse](t, nc, messages.APIGetDefinition, &model.GetDefinitionRequest{
		TenantId:     tenant,
		DefinitionId: stored.DefinitionId,
	})
	require.NoError(t, err)
	assert.Equal(t, "vendor-review", def.Definition.Name)

	started, err := request[model.StartProcessResponse](t, nc, messages.APIStartProcess, &model.StartProcessRequest{
		TenantId:     tenant,
		DefinitionId: stored.DefinitionId,
		InitiatorId:  "initiator-1",
	})
	require.NoError(t, err)
	require.NotNil(t, started.Instance)
	assert.Equal(t, model.InstanceStatusInProgress, started.Instance.Status)
	require.Len(t, started.Instance.Tasks, 2)

	tasks, err := request[model.GetTasksResponse](t, nc, messages.APIGetTasks, &model.GetTasksRequest{
		TenantId:   tenant,
		InstanceId: started.Instance.Id,
	})
	require.NoError(t, err)
	require.Len(t, tasks.Tasks, 2)

	for i, task := range tasks.Tasks {
		res, err := request[model.CompleteTaskResponse](t, nc, messages.APICompleteTask, &model.CompleteTaskRequest{
			TenantId: tenant,
			TaskId:   task.Id,
			ActorId:  task.AssigneeId,
		})
		require.NoError(t, err)
		assert.Equal(t, model.TaskStatusApproved, res.TaskStatus)
		if i == len(tasks.Tasks)-1 {
			assert.Equal(t, model.InstanceStatusCompleted, res.InstanceStatus)
		}
	}

	got, err := request[model.GetInstanceResponse](t, nc, messages.APIGetInstance, &model.GetInstanceRequest{
		TenantId:   tenant,
		InstanceId: started.Instance.Id,
	})
	require.NoError(t, err)
	assert.Equal(t, model.InstanceStatusCompleted, got.Instance.Status)
	assert.Equal(t, "initiator-1", got.Instance.CompletedBy)

	stats, err := request[model.GetStatisticsResponse](t, nc, messages.APIGetStatistics, &model.GetStatisticsRequest{TenantId: tenant})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Statistics.TotalInstances)
	assert.Equal(t, 1, stats.Statistics.CompletedInstances)
}

func TestApiErrorEnvelopes(t *testing.T) {
	ssvr, nsvr, err := zensvr.GetServers("127.0.0.1", -1)
	require.NoError(t, err)
	t.Cleanup(ssvr.Shutdown)
	t.Cleanup(nsvr.Shutdown)

	nc, err := nats.Connect(nsvr.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	_, err = request[model.GetInstanceResponse](t, nc, messages.APIGetInstance, &model.GetInstanceRequest{
		TenantId:   "acme",
		InstanceId: "missing",
	})
	require.Error(t, err)
	ae := err.(*apiErr)
	assert.Equal(t, codes.NotFound, ae.code)
	assert.Contains(t, ae.message, "not found")

	_, err = request[model.InstanceTransitionResponse](t, nc, messages.APIApproveInstance, &model.InstanceTransitionRequest{
		TenantId:   "acme",
		InstanceId: "missing",
	})
	require.Error(t, err)
	assert.Equal(t, codes.NotFound, err.(*apiErr).code)
}

func TestVersionInfoOverNats(t *testing.T) {
	ssvr, nsvr, err := zensvr.GetServers("127.0.0.1", -1)
	require.NoError(t, err)
	t.Cleanup(ssvr.Shutdown)
	t.Cleanup(nsvr.Shutdown)

	nc, err := nats.Connect(nsvr.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	res, err := request[model.GetVersionInfoResponse](t, nc, messages.APIGetVersionInfo, &model.GetVersionInfoRequest{ClientVersion: "1.0.0"})
	require.NoError(t, err)
	assert.True(t, res.Connect)
	assert.NotEmpty(t, res.ServerVersion)
	assert.NotEmpty(t, res.MinCompatibleVersion)
}
