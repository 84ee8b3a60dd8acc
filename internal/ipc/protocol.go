// Package ipc provides the unix-socket control surface between CLI invocations
// and the running voxkey daemon.
package ipc

// Request is one newline-delimited JSON command sent to the daemon.
type Request struct {
	Command string `json:"command"`
}

// Response reports command outcome plus the controller state observed.
type Response struct {
	OK      bool   `json:"ok"`
	State   string `json:"state,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
