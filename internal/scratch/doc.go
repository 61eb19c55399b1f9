// Package scratch owns the lifecycle of per-job output files.
//
// Every download gets a fresh, collision-free path under the scratch
// directory. The path is released exactly once no matter how the job ends,
// and Release also removes the engine's side files that share the path's
// stem (partial fragments, pre-merge streams). Sweep reclaims files leaked by
// crashed processes.
package scratch
