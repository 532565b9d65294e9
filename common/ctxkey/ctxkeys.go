package ctxkey

type grcflowContextKey string

// TenantID - the context key for the current tenant
var TenantID = grcflowContextKey("TENANT_ID")

// InstanceID - the context key for the process instance ID
var InstanceID = grcflowContextKey("INSTANCE_ID")

// ActorID - the context key for the currently authenticated actor
var ActorID = grcflowContextKey("ACTOR_ID")

// APIFunc - the context key for the currently executing API function
var APIFunc = grcflowContextKey("API_FN")
