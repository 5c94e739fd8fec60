package modem

import "hash/crc32"

var (
	preamble  = []int{markerA, markerA, markerB, markerB}
	postamble = []int{markerB, markerA}
)

// frameSymbols lays out preamble, length, payload, checksum and postamble as
// a sequence of tone indexes.
func frameSymbols(payload []byte) []int {
	symbols := make([]int, 0, len(preamble)+2*(len(payload)+2)+len(postamble))
	symbols = append(symbols, preamble...)
	symbols = appendByte(symbols, byte(len(payload)))
	for _, b := range payload {
		symbols = appendByte(symbols, b)
	}
	symbols = appendByte(symbols, checksum(payload))
	symbols = append(symbols, postamble...)
	return symbols
}

func appendByte(symbols []int, b byte) []int {
	return append(symbols, int(b>>4), int(b&0x0f))
}

func joinNibbles(hi, lo int) (byte, bool) {
	if hi < 0 || hi >= dataTones || lo < 0 || lo >= dataTones {
		return 0, false
	}
	return byte(hi<<4 | lo), true
}

func checksum(payload []byte) byte {
	h := crc32.NewIEEE()
	h.Write([]byte{byte(len(payload))})
	h.Write(payload)
	return byte(h.Sum32())
}

// frameLength is the number of symbols of a frame carrying n payload bytes
func frameLength(n int) int {
	return len(preamble) + 2*(n+2) + len(postamble)
}
