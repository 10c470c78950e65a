package playback

import (
	"errors"
	"fmt"
	"sync"

	"treesight/processing/detector"
)

var (
	ErrSealed          = errors.New("playback buffer is sealed")
	ErrIndexOutOfRange = errors.New("playback index out of range")
)

// Buffer holds one Result per captured frame. It only grows until Seal and
// is read-only afterwards.
type Buffer struct {
	mu      sync.RWMutex
	results []*detector.Result
	sealed  bool
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

func (b *Buffer) Append(r *detector.Result) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed {
		return ErrSealed
	}

	b.results = append(b.results, r)
	return nil
}

func (b *Buffer) Seal() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sealed = true
}

func (b *Buffer) Sealed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sealed
}

func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.results)
}

func (b *Buffer) At(i int) (*detector.Result, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if i < 0 || i >= len(b.results) {
		return nil, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, len(b.results))
	}

	return b.results[i], nil
}
