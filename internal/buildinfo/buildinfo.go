// Package buildinfo stores build-time metadata shared across packages.
package buildinfo

// Version is set via ldflags during build. Defaults to "dev".
var Version = "dev"

// ProtocolVersion is the semver of the dispatcher/car wire grammar
// this build expects. The wire protocol itself carries no version
// field — this exists purely so verticoctl doctor can warn an operator
// when this build's version falls outside a semver constraint they
// supply, without ever gating the connection on it.
const ProtocolVersion = "1.0.0"
