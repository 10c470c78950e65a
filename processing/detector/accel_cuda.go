//go:build cuda

package detector

import "gocv.io/x/gocv/cuda"

func cudaDeviceCount() int {
	return cuda.GetCudaEnabledDeviceCount()
}
