package crypto

import "hash/crc32"

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// CRC32C is the checksum Cloud KMS uses for request and response integrity.
func CRC32C(b []byte) uint32 {
	return crc32.Checksum(b, castagnoli)
}
