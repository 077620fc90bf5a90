// Package aesxts implements AES (FIPS-197) and the XTS mode of IEEE 1619
// used to protect key and firmware images written alongside the fuse array.
//
// The block cipher is a portable byte-oriented implementation with 128,
// 192 and 256-bit keys. An XTS Cipher is built from a double-length key:
// the first half encrypts data, the second half encrypts the tweak.
//
//	c, err := aesxts.New(key) // 32, 48 or 64 bytes
//	if err != nil {
//		return err
//	}
//	defer c.Wipe()
//	err = c.EncryptSector(dst, src, sector)
//
// Input must be a whole number of 16-byte blocks; ciphertext stealing is not
// supported and misaligned input returns ErrMisaligned.
package aesxts
