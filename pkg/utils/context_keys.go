package utils

type sessionCtxKey string
type flashCtxKey string
type traceIdCtxKey string

var SessionCtx sessionCtxKey = "session"
var FlashCtx flashCtxKey = "flash"
var TraceIdCtx traceIdCtxKey = "trace_id"
