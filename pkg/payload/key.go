package payload

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"

	"github.com/joshuapare/fusekit/internal/secret"
)

// KeySize is the size of generated XTS keys (two AES-256 keys).
const KeySize = 64

// GenerateKey returns a random XTS key in a secret buffer.
func GenerateKey() (*secret.Buffer, error) {
	b, err := secret.New(KeySize)
	if err != nil {
		return nil, err
	}
	data, err := b.Bytes()
	if err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(rand.Reader, data); err != nil {
		b.Close()
		return nil, fmt.Errorf("generating key: %w", err)
	}
	return b, nil
}

// SealKey encrypts key to age X25519 recipients and returns an armored key
// file.
func SealKey(key []byte, recipients ...string) ([]byte, error) {
	if len(recipients) == 0 {
		return nil, fmt.Errorf("%w: at least one recipient is required", ErrKeyFile)
	}
	rs := make([]age.Recipient, 0, len(recipients))
	for _, r := range recipients {
		rec, err := age.ParseX25519Recipient(r)
		if err != nil {
			return nil, fmt.Errorf("parsing recipient %q: %w", r, err)
		}
		rs = append(rs, rec)
	}

	var out bytes.Buffer
	aw := armor.NewWriter(&out)
	w, err := age.Encrypt(aw, rs...)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := w.Write([]byte(hex.EncodeToString(key))); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}
	if err := aw.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// LoadKey reads an XTS key file. Plain key files hold the key as hex. Armored
// age files are decrypted with identity, an AGE-SECRET-KEY-1 string; identity
// may be nil for plain files.
func LoadKey(path string, identity *secret.Buffer) (*secret.Buffer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	defer secret.Zero(raw)
	return ParseKey(raw, identity)
}

// ParseKey decodes key file contents. See LoadKey.
func ParseKey(raw []byte, identity *secret.Buffer) (*secret.Buffer, error) {
	text := raw
	if bytes.HasPrefix(bytes.TrimSpace(raw), []byte(armor.Header)) {
		if identity == nil {
			return nil, fmt.Errorf("%w: key file is age-encrypted and no identity was given", ErrKeyFile)
		}
		id, err := identity.Bytes()
		if err != nil {
			return nil, err
		}
		ident, err := age.ParseX25519Identity(strings.TrimSpace(string(id)))
		if err != nil {
			return nil, fmt.Errorf("parsing identity: %w", err)
		}
		r, err := age.Decrypt(armor.NewReader(bytes.NewReader(raw)), ident)
		if err != nil {
			return nil, fmt.Errorf("decrypting key file: %w", err)
		}
		text, err = io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("reading key file: %w", err)
		}
		defer secret.Zero(text)
	}

	trimmed := bytes.TrimSpace(text)
	key := make([]byte, hex.DecodedLen(len(trimmed)))
	if _, err := hex.Decode(key, trimmed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyFile, err)
	}
	switch len(key) {
	case 32, 48, 64:
	default:
		secret.Zero(key)
		return nil, fmt.Errorf("%w: %d-byte key", ErrKeyFile, len(key))
	}
	return secret.NewFromBytes(key)
}
