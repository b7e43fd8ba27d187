// Package cli parses the compiler's command-line arguments, validates user
// input, and owns process-level concerns like usage output and exit codes. It
// translates flags into the app package's configuration.
package cli
