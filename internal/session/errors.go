package session

import "errors"

var (
	// ErrEngineUnavailable indicates the recognition backend refused or
	// could not be reached before any device was touched.
	ErrEngineUnavailable = errors.New("speech engine unavailable")
	// ErrRecognitionNotAuthorized indicates the backend rejected the caller.
	ErrRecognitionNotAuthorized = errors.New("speech recognition not authorized")
	// ErrRecordingNotPermitted indicates the audio server denied capture.
	ErrRecordingNotPermitted = errors.New("microphone recording not permitted")
	// ErrEngineInit indicates the recognition stream failed to initialize.
	ErrEngineInit = errors.New("recognition stream initialization failed")
	// ErrDeviceStart indicates the capture device failed to start after the
	// stream was already open.
	ErrDeviceStart = errors.New("audio device start failed")
	// ErrEmptyTranscript indicates a session completed with no usable speech.
	ErrEmptyTranscript = errors.New("no speech recognized; check microphone input or mute state")
)
