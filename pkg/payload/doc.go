// Package payload seals firmware and key images with AES-XTS.
//
// A sealed payload is a fixed header, the XTS ciphertext and a BLAKE3 tag:
//
//	offset  size  field
//	0       4     magic "FKX1"
//	4       4     sector size (little-endian)
//	8       8     base sector
//	16      8     plaintext body length
//	24      n     ciphertext, padded to a 16-byte multiple
//	24+n    32    keyed BLAKE3 over header and ciphertext
//
// The body is zstd-compressed when that makes it smaller; Open detects
// compression from the zstd frame magic after decryption. The tag key is
// derived from the XTS key, so a wrong key fails with ErrIntegrity rather
// than returning garbage.
//
// XTS keys may be stored age-encrypted (LoadKey, SealKey); decrypted key
// material is returned in a secret.Buffer.
package payload
