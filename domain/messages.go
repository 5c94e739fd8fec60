package domain

// ProcessAudioRequest carries a modulated message from a device
type ProcessAudioRequest struct {
	AudioData string `json:"audio_data" msgpack:"audio_data"` // base64 encoded
}

// ProcessAudioResponse carries the modulated reply
type ProcessAudioResponse struct {
	AudioData string `json:"audio_data" msgpack:"audio_data"` // base64 encoded
}
