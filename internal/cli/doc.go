// Package cli holds the process-level exit code convention shared by every
// command: which errors mean a failed run, which mean bad usage, and how an
// error travels out of the command tree with its code intact.
package cli
