package aesxts

import "encoding/binary"

// BlockSize is the AES block size in bytes.
const BlockSize = 16

var (
	sbox    [256]byte
	invSbox [256]byte
)

func init() {
	// S-box from the multiplicative inverse in GF(2^8) followed by the
	// affine transform of FIPS-197 5.1.1.
	for x := 0; x < 256; x++ {
		inv := byte(0)
		if x != 0 {
			inv = gfInverse(byte(x))
		}
		s := inv ^ rotl8(inv, 1) ^ rotl8(inv, 2) ^ rotl8(inv, 3) ^ rotl8(inv, 4) ^ 0x63
		sbox[x] = s
		invSbox[s] = byte(x)
	}
}

func rotl8(b byte, n uint) byte { return b<<n | b>>(8-n) }

// xtime multiplies by x modulo the AES polynomial.
func xtime(b byte) byte {
	if b&0x80 != 0 {
		return b<<1 ^ 0x1B
	}
	return b << 1
}

func gfMul(a, b byte) byte {
	var p byte
	for b != 0 {
		if b&1 != 0 {
			p ^= a
		}
		a = xtime(a)
		b >>= 1
	}
	return p
}

// gfInverse returns a^254 = a^-1.
func gfInverse(a byte) byte {
	r := byte(1)
	for i := 0; i < 254; i++ {
		r = gfMul(r, a)
	}
	return r
}

// Block is an expanded AES key. It satisfies crypto/cipher.Block.
type Block struct {
	rk     []uint32 // 4*(rounds+1) round key words
	rounds int
}

// NewBlock expands a 16, 24 or 32-byte key.
func NewBlock(key []byte) (*Block, error) {
	nk := len(key) / 4
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, KeySizeError(len(key))
	}
	rounds := nk + 6
	w := make([]uint32, 4*(rounds+1))
	for i := 0; i < nk; i++ {
		w[i] = binary.BigEndian.Uint32(key[4*i:])
	}
	rcon := byte(1)
	for i := nk; i < len(w); i++ {
		t := w[i-1]
		switch {
		case i%nk == 0:
			t = subWord(t<<8|t>>24) ^ uint32(rcon)<<24
			rcon = xtime(rcon)
		case nk > 6 && i%nk == 4:
			t = subWord(t)
		}
		w[i] = w[i-nk] ^ t
	}
	return &Block{rk: w, rounds: rounds}, nil
}

func subWord(w uint32) uint32 {
	return uint32(sbox[w>>24])<<24 | uint32(sbox[w>>16&0xFF])<<16 | uint32(sbox[w>>8&0xFF])<<8 | uint32(sbox[w&0xFF])
}

// BlockSize returns 16.
func (b *Block) BlockSize() int { return BlockSize }

// Rounds returns 10, 12 or 14.
func (b *Block) Rounds() int { return b.rounds }

// state is column-major: byte 4c+r is row r of column c, which is also the
// input byte order.
type state [BlockSize]byte

func (s *state) addRoundKey(rk []uint32) {
	for c := 0; c < 4; c++ {
		k := rk[c]
		s[4*c] ^= byte(k >> 24)
		s[4*c+1] ^= byte(k >> 16)
		s[4*c+2] ^= byte(k >> 8)
		s[4*c+3] ^= byte(k)
	}
}

func (s *state) subBytes(box *[256]byte) {
	for i := range s {
		s[i] = box[s[i]]
	}
}

func (s *state) shiftRows() {
	var t state
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			t[4*c+r] = s[4*((c+r)%4)+r]
		}
	}
	*s = t
}

func (s *state) invShiftRows() {
	var t state
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			t[4*((c+r)%4)+r] = s[4*c+r]
		}
	}
	*s = t
}

func (s *state) mixColumns() {
	for c := 0; c < 4; c++ {
		a0, a1, a2, a3 := s[4*c], s[4*c+1], s[4*c+2], s[4*c+3]
		s[4*c] = xtime(a0) ^ xtime(a1) ^ a1 ^ a2 ^ a3
		s[4*c+1] = a0 ^ xtime(a1) ^ xtime(a2) ^ a2 ^ a3
		s[4*c+2] = a0 ^ a1 ^ xtime(a2) ^ xtime(a3) ^ a3
		s[4*c+3] = xtime(a0) ^ a0 ^ a1 ^ a2 ^ xtime(a3)
	}
}

func (s *state) invMixColumns() {
	for c := 0; c < 4; c++ {
		a0, a1, a2, a3 := s[4*c], s[4*c+1], s[4*c+2], s[4*c+3]
		s[4*c] = gfMul(a0, 14) ^ gfMul(a1, 11) ^ gfMul(a2, 13) ^ gfMul(a3, 9)
		s[4*c+1] = gfMul(a0, 9) ^ gfMul(a1, 14) ^ gfMul(a2, 11) ^ gfMul(a3, 13)
		s[4*c+2] = gfMul(a0, 13) ^ gfMul(a1, 9) ^ gfMul(a2, 14) ^ gfMul(a3, 11)
		s[4*c+3] = gfMul(a0, 11) ^ gfMul(a1, 13) ^ gfMul(a2, 9) ^ gfMul(a3, 14)
	}
}

// Encrypt encrypts one block from src into dst. dst and src may overlap
// entirely. It panics if either is shorter than BlockSize.
func (b *Block) Encrypt(dst, src []byte) {
	if len(src) < BlockSize || len(dst) < BlockSize {
		panic("aesxts: input not full block")
	}
	var s state
	copy(s[:], src)
	s.addRoundKey(b.rk[0:4])
	for r := 1; r < b.rounds; r++ {
		s.subBytes(&sbox)
		s.shiftRows()
		s.mixColumns()
		s.addRoundKey(b.rk[4*r : 4*r+4])
	}
	s.subBytes(&sbox)
	s.shiftRows()
	s.addRoundKey(b.rk[4*b.rounds:])
	copy(dst, s[:])
}

// Decrypt decrypts one block from src into dst.
func (b *Block) Decrypt(dst, src []byte) {
	if len(src) < BlockSize || len(dst) < BlockSize {
		panic("aesxts: input not full block")
	}
	var s state
	copy(s[:], src)
	s.addRoundKey(b.rk[4*b.rounds:])
	for r := b.rounds - 1; r >= 1; r-- {
		s.invShiftRows()
		s.subBytes(&invSbox)
		s.addRoundKey(b.rk[4*r : 4*r+4])
		s.invMixColumns()
	}
	s.invShiftRows()
	s.subBytes(&invSbox)
	s.addRoundKey(b.rk[0:4])
	copy(dst, s[:])
}

// Wipe zeroes the round keys.
func (b *Block) Wipe() {
	clear(b.rk)
}
