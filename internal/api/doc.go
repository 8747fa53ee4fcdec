// Package api implements the REST endpoints of the service: configuration
// table load/replace, computation submit/confirm/cancel/status, assignation
// submit, and result listing/selection. Progress and log streaming is served
// by the ws package.
package api
