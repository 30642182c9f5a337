// Package vm implements the skein runtime core.
//
// This package contains:
//   - NaN-boxed value representation and the per-process arena
//   - Compiled code, bindings, blocks and execution contexts
//   - The bytecode interpreter (Machine) and its control-transfer actions
//   - Work-stealing process workers with an exclusive (pinned) mode
//   - Tracer pools used while collecting a process's arena
//   - The bytecode file registry shared by every worker
package vm
