package internal

import "sync"

// maxBlockBuffer is the capacity of pooled block buffers, large enough
// for one physical BGZF block.
const maxBlockBuffer = 65536

var bufPool = sync.Pool{New: func() interface{} {
	return make([]byte, 0, maxBlockBuffer)
}}

/*
ReserveByteBuffer uses a sync.Pool to either reuse or make a slice of
bytes of length 0, and of capacity of at least one physical block.

Use ReleaseByteBuffer to return slices of bytes to the internal pool.
*/
func ReserveByteBuffer() []byte {
	return bufPool.Get().([]byte)[:0]
}

/*
ReleaseByteBuffer returns the given slice of bytes to the internal
sync.Pool from which ReserveByteBuffer can fetch it again.
*/
func ReleaseByteBuffer(buf []byte) {
	bufPool.Put(buf[:0])
}
