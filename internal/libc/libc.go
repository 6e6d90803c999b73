// Package libc embeds the bundled minimal C library source that shecc
// inlines ahead of a compiled translation unit unless --no-libc is
// given, per spec.md §6.
//
// Grounded on tools/build.go's "//go:embed .." directive shipping the
// teacher's own standard library inside its compiler binary,
// generalized from a tree of Go source to the single C source/header
// pair spec.md §6 names.
package libc

import _ "embed"

//go:embed c.c
var Source string

//go:embed c.h
var Header string
