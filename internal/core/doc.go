// Package core implements the compile → relocate → trim pipeline.
//
// A Target names a TypeScript source file. Running a target:
//
//  1. Compile: invoke the external compiler on the source. The compiler is
//     expected to write the artifact next to the source with a .js extension.
//  2. Relocate (optional): copy the artifact to its destination and remove
//     the original.
//  3. Trim: drop the first N lines of the artifact (the compiler prologue)
//     and rewrite the file in place.
//
// # Core Types
//
// Target: the source path plus optional relocation destination.
// Compiler: the external process invoked on a source.
// Runner: executes the three steps for a target and reports progress.
// RunResult: the inspectable outcome of every step.
//
// Steps never panic and never swallow filesystem errors; a compile failure
// is recorded in CompileResult and only stops the run in strict mode.
package core
