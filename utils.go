package vkr

import (
	"unsafe"
)

const maxSliceBytes = 0x7fffffff

// ToBytes views size bytes at ptr as a byte slice. Useful for handing
// vertex or uniform structs to WriteBuffer.
func ToBytes(ptr unsafe.Pointer, size int) []byte {
	return (*[maxSliceBytes]byte)(ptr)[:size:size]
}

func bytesAt(ptr unsafe.Pointer, offset uint64, size int) []byte {
	return (*[maxSliceBytes]byte)(unsafe.Pointer(uintptr(ptr) + uintptr(offset)))[:size:size]
}
