// Package http implements the local status API the GUI talks to. Handlers
// are thin: they decode and validate the request, call the entitlement
// gate and render the result.
//
// Routes:
//
//	GET    /api/license           license status report
//	GET    /api/license/pro       {"is_pro": bool}
//	POST   /api/license/activate  activate, optionally with a vendor response
//	POST   /api/license/request   offline activation request code
//	DELETE /api/license           deactivate this machine
//	GET    /api/quota             may a download start now
//	GET    /healthz               liveness and activation guard stats
//
// Errors are RFC 7807 problem documents produced by errors.ErrorHandler.
// Entitlement error kinds keep their name in the "kind" extension so the
// GUI can tell quota exhaustion from a clock rollback.
package http
