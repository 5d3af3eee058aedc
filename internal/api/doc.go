// Package api exposes the REST interface for parsing remittance intents,
// submitting remittances, and reading transfer history and verification
// state. It will also host OpenAPI documentation for external integrators.
package api
