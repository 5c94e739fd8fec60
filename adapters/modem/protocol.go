package modem

import "fmt"

const (
	// SampleRate of every signal produced and accepted by the modem
	SampleRate = 48000

	// MaxPayloadLength is the largest message a single frame carries
	MaxPayloadLength = 140

	dataTones   = 16 // one nibble per symbol
	markerA     = dataTones
	markerB     = dataTones + 1
	toneCount   = dataTones + 2
	toneSpacing = 2 // FFT bins between neighbouring tones
)

// Protocol describes one transmission profile. Every tone sits exactly on an
// FFT bin of a SymbolSamples-long window, so an aligned window sees a single
// spike.
type Protocol struct {
	ID            int
	Name          string
	SymbolSamples int
	BaseBin       int
}

var protocols = []Protocol{
	{ID: 0, Name: "audible-normal", SymbolSamples: 1024, BaseBin: 40},
	{ID: 1, Name: "audible-fast", SymbolSamples: 512, BaseBin: 20},
	{ID: 2, Name: "audible-fastest", SymbolSamples: 256, BaseBin: 10},
	{ID: 3, Name: "ultrasound-normal", SymbolSamples: 1024, BaseBin: 320},
	{ID: 4, Name: "ultrasound-fast", SymbolSamples: 512, BaseBin: 160},
	{ID: 5, Name: "ultrasound-fastest", SymbolSamples: 256, BaseBin: 80},
}

// Protocols returns the supported transmission profiles ordered by ID
func Protocols() []Protocol {
	out := make([]Protocol, len(protocols))
	copy(out, protocols)
	return out
}

// LookupProtocol returns the protocol with the given ID
func LookupProtocol(id int) (Protocol, error) {
	for _, p := range protocols {
		if p.ID == id {
			return p, nil
		}
	}
	return Protocol{}, fmt.Errorf("%w: %d", ErrUnknownProtocol, id)
}

func (p Protocol) toneBin(tone int) int {
	return p.BaseBin + tone*toneSpacing
}

// ToneFrequency returns the frequency in Hz of a tone index
func (p Protocol) ToneFrequency(tone int) float64 {
	return float64(p.toneBin(tone)) * SampleRate / float64(p.SymbolSamples)
}

// SymbolDuration returns the length of one symbol in seconds
func (p Protocol) SymbolDuration() float64 {
	return float64(p.SymbolSamples) / SampleRate
}
