package store

import "fmt"

func errOutOfBounds(off int64, n int, size int64) error {
	return fmt.Errorf("write of %d bytes at offset %d is outside of a %d byte output", n, off, size)
}
