// Package kernels holds sorting-network kernels generated as Go assembly.
//
// The functions are listed in kernels.toml and produced by the avo program
// in internal/avo:
//
//	go generate ./kernels
//
// Each kernel is exported under a name built from its configuration, for
// example SortBitonicInt32x8V256, and sorts the elements behind its pointer
// in place. The caller must check the CPU features the kernel was generated
// for.
package kernels

//go:generate go run -tags avogen ../internal/avo -matrix kernels.toml -out sort_amd64.s -stubs sort_amd64.go
