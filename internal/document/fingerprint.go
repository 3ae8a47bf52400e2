package document

import (
	"crypto/md5"
	"encoding/hex"
)

// Fingerprint identifies the pixels of a normalized image. It is a cache
// key only.
type Fingerprint [md5.Size]byte

// String returns the lowercase hex form.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// FingerprintOf digests the canonical PNG encoding of img, so identical
// pixels give identical fingerprints regardless of how img was decoded.
func FingerprintOf(img *Image) (Fingerprint, error) {
	data, err := img.PNG()
	if err != nil {
		return Fingerprint{}, err
	}
	return md5.Sum(data), nil
}
