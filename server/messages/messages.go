package messages

import "fmt"

const (
	APIAll              = "GRCFLOW.Api.*"                // APIAll is all API message subjects.
	APIStartProcess     = "GRCFLOW.Api.StartProcess"     // APIStartProcess is the start process API subject.
	APIApproveInstance  = "GRCFLOW.Api.ApproveInstance"  // APIApproveInstance is the approve instance API subject.
	APIRejectInstance   = "GRCFLOW.Api.RejectInstance"   // APIRejectInstance is the reject instance API subject.
	APICompleteInstance = "GRCFLOW.Api.CompleteInstance" // APICompleteInstance is the complete instance API subject.
	APICompleteTask     = "GRCFLOW.Api.CompleteTask"     // APICompleteTask is the complete task API subject.
	APIGetInstance      = "GRCFLOW.Api.GetInstance"      // APIGetInstance is the get instance API subject.
	APIGetTasks         = "GRCFLOW.Api.GetTasks"         // APIGetTasks is the get instance tasks API subject.
	APIListInstances    = "GRCFLOW.Api.ListInstances"    // APIListInstances is the list tenant instances API subject.
	APIGetStatistics    = "GRCFLOW.Api.GetStatistics"    // APIGetStatistics is the get tenant statistics API subject.
	APIStoreDefinition  = "GRCFLOW.Api.StoreDefinition"  // APIStoreDefinition is the store definition API subject.
	APIGetDefinition    = "GRCFLOW.Api.GetDefinition"    // APIGetDefinition is the get definition API subject.
	APIGetVersionInfo   = "GRCFLOW.Api.GetVersionInfo"   // APIGetVersionInfo is the get server version information API message subject.
)

const (
	CompatHeader = "GRCFLOW_COMPAT" // CompatHeader carries the caller's client library version.
	TenantHeader = "GRCFLOW_TENANT" // TenantHeader carries the caller's tenant for logging and context.
)

// AuditEventSubject is the template for broadcasting created audit events, parameterized by tenant.
var AuditEventSubject = "GRCFLOW.%s.State.Audit.Created"

var (
	KvDefinition = "GRCFLOW_DEF_%s"      // KvDefinition is the name template of the per-tenant key value store holding process definitions.
	KvInstance   = "GRCFLOW_INSTANCE_%s" // KvInstance is the name template of the per-tenant key value store holding process instances with their tasks.
	KvTaskIndex  = "GRCFLOW_TASK_%s"     // KvTaskIndex is the name template of the per-tenant key value store mapping task IDs to instance IDs.
	KvAudit      = "GRCFLOW_AUDIT_%s"    // KvAudit is the name template of the per-tenant key value store holding append-only audit events.
	KvRole       = "GRCFLOW_ROLE_%s"     // KvRole is the name template of the per-tenant key value store holding role memberships.
	KvActor      = "GRCFLOW_ACTOR_%s"    // KvActor is the name template of the per-tenant key value store holding actors.
	KvVersion    = "GRCFLOW_VERSION"     // KvVersion is the name of the key value store holding server version metadata.
)

// DefaultTenant is the bucket qualifier for global (tenant-less) definitions.
const DefaultTenant = "default"

// TenantBucket renders a per-tenant bucket name from one of the Kv name templates.
// An empty tenant resolves to the default (global) bucket.
func TenantBucket(template string, tenant string) string {
	if tenant == "" {
		tenant = DefaultTenant
	}
	return fmt.Sprintf(template, tenant)
}
