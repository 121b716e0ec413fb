// Package api implements the HTTP REST API for vitalwatch-server.
//
// New(deps) returns a chi router that serves:
//
//	GET  /api/v1/health                          store sizes and emitted alert count
//	GET  /api/v1/patients                        every known patient with record count and watermark
//	GET  /api/v1/patients/{id}/records?from=&to= records in an inclusive time range
//	GET  /api/v1/patients/{id}/latest/{kind}     most recent record of one kind
//	GET  /api/v1/patients/{id}/watermark         last evaluated timestamp
//	GET  /api/v1/alerts?patient=&limit=          recent alerts, newest first
//	POST /api/v1/records                         ingest JSON records or text lines
//	GET  /metrics                                Prometheus text exposition
//	GET  /ws/alerts                              live alert stream
//
// The /api/v1 group and the alert stream run behind the optional auth
// middleware; /metrics stays open. Responses are
// JSON; the types are defined in types.go.
package api
