package fusekit

import (
	"github.com/joshuapare/fusekit/internal/secret"
	"github.com/joshuapare/fusekit/pkg/payload"
)

// Encrypt seals data under an XTS key of 32, 48 or 64 bytes.
func Encrypt(key, data []byte, opts ...payload.Option) ([]byte, error) {
	return payload.Seal(key, data, opts...)
}

// Decrypt opens a payload sealed by Encrypt.
func Decrypt(key, sealed []byte) ([]byte, error) {
	return payload.Open(key, sealed)
}

// LoadKey reads an XTS key file. identityPath names an age identity file
// (or "-" for stdin) and may be empty for plain hex key files.
func LoadKey(keyPath, identityPath string) (*secret.Buffer, error) {
	var identity *secret.Buffer
	if identityPath != "" {
		var err error
		if identity, err = secret.ReadFile(identityPath); err != nil {
			return nil, err
		}
		defer identity.Close()
	}
	return payload.LoadKey(keyPath, identity)
}
