// Package app wires the compiler together: it owns the logger, the registry
// of manifest definitions, and the compile lifecycle from manifest loading to
// catalog output.
package app
