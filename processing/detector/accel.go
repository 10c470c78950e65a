package detector

import (
	"strings"
	"sync"
)

var (
	cudaOnce  sync.Once
	cudaCount int
)

// HasAccelerator resolves the configured device. "auto" asks OpenCV for
// CUDA devices, which is only compiled in with the cuda build tag.
func HasAccelerator(device string) bool {
	switch strings.ToLower(device) {
	case DeviceCPU:
		return false
	case "gpu", "cuda", "0":
		return true
	}

	cudaOnce.Do(func() {
		cudaCount = cudaDeviceCount()
	})

	return cudaCount > 0
}
