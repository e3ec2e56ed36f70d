//go:build !amd64 || purego

package sortnet

// HostFeatures reports no extensions on machines the generated kernels cannot
// run on. Kernels can still be generated for an explicit Target.Features.
func HostFeatures() Features {
	return 0
}
