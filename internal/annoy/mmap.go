package annoy

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// mmapRegion is a read-only mapping of a whole index file.
type mmapRegion struct {
	data   []byte
	file   *os.File
	closed atomic.Bool
}

func mapReadOnly(path string) (*mmapRegion, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("annoy: open index: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("annoy: stat index: %w", err)
	}
	size := info.Size()
	if size < HeaderSize {
		file.Close()
		return nil, fmt.Errorf("%w: %d bytes", ErrCorrupt, size)
	}
	data, err := unix.Mmap(int(file.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("annoy: mmap index: %w", err)
	}
	return &mmapRegion{data: data, file: file}, nil
}

func (r *mmapRegion) Close() error {
	if r == nil || !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	var errs []error
	if r.data != nil {
		if err := unix.Munmap(r.data); err != nil {
			errs = append(errs, fmt.Errorf("annoy: munmap: %w", err))
		}
		r.data = nil
	}
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("annoy: close index file: %w", err))
		}
		r.file = nil
	}
	return errors.Join(errs...)
}

// float32View returns a zero-copy []float32 over data[off:off+4n].
// All section offsets are multiples of 4 and the mapping is page aligned.
func float32View(data []byte, off int64, n int) []float32 {
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&data[off])), n)
}

func uint32View(data []byte, off int64, n int) []uint32 {
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&data[off])), n)
}
