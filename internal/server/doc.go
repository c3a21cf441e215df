// Package server hosts the optional Fiber diagnostics service: a request-id
// middleware chain, a liveness probe, and the app constructor the composition
// root uses to expose the /-/status surface. The save-file data path never
// goes through this package — it exists purely for operators, and stays off
// unless a diagnostics port is configured. Keep exports narrow and accept
// explicit dependencies.
package server
