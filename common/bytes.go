package common

import "unsafe"

// SliceToBytes converts any slice to a byte slice for GPU buffer uploads.
// Uses unsafe pointer operations to create a view into the original data.
// WARNING: The returned slice shares memory with the input - do not modify.
//
// Parameters:
//   - data: source slice of any type
//
// Returns:
//   - []byte: byte slice view of the input data, or nil if input is empty
func SliceToBytes[T any](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	var zero T
	size := unsafe.Sizeof(zero)
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), int(size)*len(data))
}

// CopyToBytes is SliceToBytes followed by a copy, for writes that are queued
// and may outlive the source slice.
//
// Parameters:
//   - data: source slice of any type
//
// Returns:
//   - []byte: an owned copy of the slice's bytes, or nil if input is empty
func CopyToBytes[T any](data []T) []byte {
	view := SliceToBytes(data)
	if view == nil {
		return nil
	}
	out := make([]byte, len(view))
	copy(out, view)
	return out
}
