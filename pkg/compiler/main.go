// Package compiler is the backend of a C-subset compiler. It lowers typed
// expression and statement trees into the two-section text program of a
// 16-bit word machine.
//
// Pipeline: JSON unit → Decode → Generate → program text
package compiler
