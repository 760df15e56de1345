// Package eventstream decodes the AWS Event Stream binary framing used by
// the Kiro south-side API: length-prefixed frames carrying typed headers
// and a JSON payload, each protected by two CRC32 checksums.
package eventstream

import "hash/crc32"

// crcTable is the standard IEEE 802.3 CRC-32 table: polynomial 0x04C11DB7
// taken most-significant-bit-first, which is exactly the reflected
// polynomial 0xEDB88320 that Go's hash/crc32 package already implements as
// crc32.IEEE. AWS Event Stream frames use this checksum for both the
// prelude CRC and the trailing message CRC.
var crcTable = crc32.MakeTable(crc32.IEEE)

// checksum returns the CRC32 (IEEE/poly 0x04C11DB7, reflected) of b.
func checksum(b []byte) uint32 {
	return crc32.Checksum(b, crcTable)
}
