package vector

import (
	"encoding/binary"
	"hash/crc32"
)

func appendCRC(body []byte) []byte {
	out := append([]byte(nil), body...)
	trailer := make([]byte, 4)
	binary.LittleEndian.PutUint32(trailer, crc32.ChecksumIEEE(body))
	return append(out, trailer...)
}
