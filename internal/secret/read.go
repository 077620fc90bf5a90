package secret

import (
	"bytes"
	"errors"
	"io"
	"os"
)

// ReadFile reads a secret from path, or from stdin if path is "-". Leading
// and trailing whitespace is trimmed; an empty secret is an error.
func ReadFile(path string) (*Buffer, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	return FromBytes(data)
}

// FromBytes trims data into a new buffer and zeroes all of data.
func FromBytes(data []byte) (*Buffer, error) {
	defer Zero(data)
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("secret is empty")
	}
	return NewFromBytes(trimmed)
}
