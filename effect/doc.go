// Package effect provides a small, lazy effect system for Go. An IO[A] is a
// description of a computation: building one runs nothing, and composing
// them with Map, FlatMap, Zip and friends builds a bigger description.
// Calling Run evaluates the chain once, in order, stopping at the first
// failure unless a recovery combinator intercepts it.
//
//	version := effect.Attempt(readVersionFile)
//	tagged := effect.FlatMap(version, func(v string) effect.IO[string] {
//		return effect.Succeed("v" + v)
//	})
//	result, err := tagged.Run(ctx)
//
// Logging effects (LogInfo, LogSpan, ...) resolve their logger from the run
// context, and Runtime wires a configured slog handler into that context
// before driving an App to completion.
package effect
