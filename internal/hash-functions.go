package internal

// IntHash returns a hash value for the given integer value.
func IntHash(i int64) uint64 {
	// splitmix64 finalizer
	x := uint64(i)
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
