package wire

import "crypto/rand"

// Mask XORs b in place with key[i mod 4]. Applying it twice with the same
// key restores the original bytes, so the same routine masks and unmasks.
func Mask(key []byte, b []byte) {
	for i := range b {
		b[i] ^= key[i&3]
	}
}

// GenMaskKey fills key with fresh random bytes for one outbound frame.
func GenMaskKey(key []byte) {
	rand.Read(key)
}
