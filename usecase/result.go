package usecase

import "errors"

// Outcome classifies how a request ended
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeInvalidRequest
	OutcomeInvalidAudioData
	OutcomeEncodingFailure
	OutcomeUnexpected
)

var (
	// ErrInvalidRequest means the request carried no usable base64 audio
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidAudioData means the decoder recognized no signal
	ErrInvalidAudioData = errors.New("invalid audio data")
	// ErrEncodingFailure means the reply could not be turned into a signal
	ErrEncodingFailure = errors.New("encoding failure")
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeInvalidRequest:
		return "invalid_request"
	case OutcomeInvalidAudioData:
		return "invalid_audio_data"
	case OutcomeEncodingFailure:
		return "encoding_failure"
	default:
		return "unexpected"
	}
}

// ClientFault reports whether the caller caused the failure
func (o Outcome) ClientFault() bool {
	return o == OutcomeInvalidRequest || o == OutcomeInvalidAudioData
}

// Result is the outcome of processing one modulated message. Audio and
// AudioData are set only when Outcome is OutcomeSuccess.
type Result struct {
	Outcome   Outcome
	Audio     []byte
	AudioData string // base64 of Audio
	Message   string
	Reply     string
	Err       error
}

// OK reports whether the request succeeded
func (r Result) OK() bool {
	return r.Outcome == OutcomeSuccess
}

func failure(outcome Outcome, err error) Result {
	return Result{Outcome: outcome, Err: err}
}

// Client-facing details for failures whose cause is not exposed
const (
	DetailInvalidAudioData = "Invalid ggwave audio data"
	DetailEncodingFailure  = "Error encoding response with ggwave"
	DetailInternalPrefix   = "Internal Server Error: "
)

// ErrorCode is the wire code reported for a failed outcome
func (o Outcome) ErrorCode() string {
	if o == OutcomeUnexpected {
		return "internal_error"
	}
	return o.String()
}

// Detail describes a failed Result to the caller
func (r Result) Detail() string {
	switch r.Outcome {
	case OutcomeSuccess:
		return ""
	case OutcomeInvalidAudioData:
		return DetailInvalidAudioData
	case OutcomeEncodingFailure:
		return DetailEncodingFailure
	case OutcomeInvalidRequest:
		if r.Err != nil {
			return r.Err.Error()
		}
		return ErrInvalidRequest.Error()
	default:
		if r.Err != nil {
			return DetailInternalPrefix + r.Err.Error()
		}
		return DetailInternalPrefix + "unknown error"
	}
}
