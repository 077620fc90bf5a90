package aesxts

import (
	"crypto/subtle"
	"encoding/binary"
)

// Cipher is AES-XTS keyed with a data key and a tweak key.
type Cipher struct {
	data  *Block
	tweak *Block
}

// New builds an XTS cipher from a 32, 48 or 64-byte key.
func New(key []byte) (*Cipher, error) {
	switch len(key) {
	case 32, 48, 64:
	default:
		return nil, KeySizeError(len(key))
	}
	half := len(key) / 2
	data, err := NewBlock(key[:half])
	if err != nil {
		return nil, err
	}
	tweak, err := NewBlock(key[half:])
	if err != nil {
		return nil, err
	}
	return &Cipher{data: data, tweak: tweak}, nil
}

// EncryptSector encrypts src into dst as data unit sector.
func (c *Cipher) EncryptSector(dst, src []byte, sector uint64) error {
	return c.crypt(dst, src, sector, c.data.Encrypt)
}

// DecryptSector decrypts src into dst as data unit sector.
func (c *Cipher) DecryptSector(dst, src []byte, sector uint64) error {
	return c.crypt(dst, src, sector, c.data.Decrypt)
}

func (c *Cipher) crypt(dst, src []byte, sector uint64, fn func(dst, src []byte)) error {
	if len(src)%BlockSize != 0 {
		return ErrMisaligned
	}
	if len(dst) < len(src) {
		return ErrShortBuffer
	}

	var t [BlockSize]byte
	binary.LittleEndian.PutUint64(t[:8], sector)
	c.tweak.Encrypt(t[:], t[:])

	var buf [BlockSize]byte
	for off := 0; off < len(src); off += BlockSize {
		subtle.XORBytes(buf[:], src[off:off+BlockSize], t[:])
		fn(buf[:], buf[:])
		subtle.XORBytes(dst[off:off+BlockSize], buf[:], t[:])
		mulAlpha(&t)
	}
	return nil
}

// mulAlpha multiplies the tweak by x in GF(2^128), little-endian byte order.
func mulAlpha(t *[BlockSize]byte) {
	carry := t[BlockSize-1] >> 7
	for j := BlockSize - 1; j > 0; j-- {
		t[j] = t[j]<<1 | t[j-1]>>7
	}
	t[0] <<= 1
	if carry != 0 {
		t[0] ^= 0x87
	}
}

// Wipe zeroes both key schedules. The cipher is unusable afterwards.
func (c *Cipher) Wipe() {
	c.data.Wipe()
	c.tweak.Wipe()
}
