// Package app wires the delivery engine together: it builds the logger,
// loads and validates the pipeline manifest, registers the built-in modules
// and drives a run from trigger evaluation through graph execution to the
// run ledger. Entrypoints such as the CLI stay thin on top of it.
package app
