//go:build !cuda

package detector

func cudaDeviceCount() int {
	return 0
}
