// Package vm implements the Piccolo runtime.
//
// This package contains:
//   - the tagged Value representation and heap object kinds
//   - a mark-sweep collector with temp roots, handles and finalizers
//   - the tree-walking interpreter with shared upvalues
//   - method dispatch where fields shadow methods
//   - the native bridge and the per-VM module registry
package vm
