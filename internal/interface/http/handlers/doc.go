// Package handlers contains the reusable pieces of the HTTP interface that do
// not depend on the route table: health checks, bearer authentication and
// response-header middleware.
//
// # Health Checks
//
//	checker := handlers.NewCompositeHealthChecker(version)
//	checker.AddCheck("postgres", handlers.PingCheck(conn))
//	checker.AddOptionalCheck("redis", handlers.PingCheck(cache))
//
// Optional checks are reported but never make the service unready.
//
// # Middleware
//
//	protected := handlers.Chain(
//	    handlers.RequestSizeLimit(1<<20, reject),
//	    handlers.BearerAuth(verifier, reject),
//	)(mux)
//
// BearerAuth stores the verified principal in the request context; read it
// back with PrincipalFrom.
package handlers
