// Package vm implements the tern register virtual machine.
//
// This package contains:
//   - Opcodes, decoded instructions and the variable-width encoding
//   - Function prototypes produced by the compiler
//   - Tagged runtime values, tables, arrays, classes and instances
//   - Capture cells shared between closures
//   - The register interpreter and its runtime errors
package vm
