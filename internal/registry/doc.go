// Package registry provides the central "glue" for the module system.
//
// The Registry stores mappings between the string identifiers used in
// manifests (e.g. "OnRunExec") and the compiled Go functions and types that
// implement the module's logic. It also holds the format-agnostic runner and
// asset definitions, whether registered from Go by built-in modules or parsed
// from user manifests.
//
// During startup, the registry is populated and then validated so the Go
// structs and the manifests are in sync before any step runs.
package registry
