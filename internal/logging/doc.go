// Package logging is the schemactx logger: Zap with request-scope fields,
// secret scrubbing and sampling.
//
// Every method takes a context. Fields describing the request the context
// belongs to are added to each entry:
//
//	ctx = logging.WithScope(ctx, logging.Scope{RequestID: id, UserID: "alice", ConnectionID: "prod"})
//	logger.Info(ctx, "search completed", zap.Int("results", 3))
//
//	{"level":"info","msg":"search completed","request.id":"...","tenant.user":"alice","tenant.connection":"prod","results":3}
//
// Logs are written to the writer passed to New, normally stderr, so that
// command output on stdout stays machine-readable.
//
// Connection strings are logged with DSN, which masks passwords in URL and
// keyword form. Fields named like credentials and values that look like
// tokens are replaced before encoding.
package logging
