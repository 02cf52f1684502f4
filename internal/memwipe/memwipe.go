// Package memwipe zeroes sensitive byte slices once they are no longer
// needed, the same best-effort cleanup the rest of the ecosystem performs
// for decrypted secret material.
package memwipe

import "runtime"

// Wipe zeroes data in place and nudges the GC to collect any copies the
// runtime made along the way. It cannot guarantee removal from memory, but
// it closes the easy window where a stale buffer lingers on the heap.
func Wipe(data []byte) {
	if data == nil {
		return
	}

	for i := range data {
		data[i] = 0
	}

	runtime.KeepAlive(data)
	runtime.GC()
}
