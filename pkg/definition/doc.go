// Package definition loads fuse definition files.
//
// A definition file is YAML with three sections: the array geometry, the
// named fuses (each a list of locators) and named profiles (fuse values plus
// an optional boot instruction patch list):
//
//	geometry:
//	  name: demo
//	  rows: 64
//	  region: {start: 64, end: 1024}
//	  fields: {chain_id: 5, type: 3, address: 13, data: 11}
//	  patch_rows: 4
//	  timing: {poll_timeout: 10ms, attempts: 3}
//	fuses:
//	  - name: secure_boot
//	    locators:
//	      - {chain: 1, bits: "3:0"}
//	      - {row: 40, bits: "7:4", polarity: enable-undo, undo: {row: 40, bits: "11:8"}}
//	profiles:
//	  - name: production
//	    fuses: {secure_boot: 0x9}
//	    patches:
//	      - {op: write, address: 0x4000, value: 0xDEAD}
//
// Fuse and profile names are matched case-insensitively with Unicode case
// folding. Legacy files exported in a single-byte code page can be loaded
// with WithEncoding.
package definition
