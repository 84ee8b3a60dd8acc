// Package audio handles device discovery, selection, and PCM capture streams.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const (
	// chunkSizeBytes is one tap buffer: 1024 frames @ 16kHz mono s16.
	chunkFrames    = 1024
	chunkSizeBytes = chunkFrames * 2
)

// Device describes one Pulse input source surfaced to voxkey.
type Device struct {
	ID          string
	Description string
	State       string
	Available   bool
	Muted       bool
	Default     bool
}

// Selection is the resolved capture source plus optional fallback warning context.
type Selection struct {
	Device   Device
	Warning  string
	Fallback bool
}

// ListDevices enumerates Pulse input sources, marking the server default and
// resolving per-port availability.
func ListDevices(_ context.Context) ([]Device, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("voxkey"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	def, err := client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("resolve default source: %w", err)
	}

	var reply pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &reply); err != nil {
		return nil, fmt.Errorf("enumerate sources: %w", err)
	}

	devices := make([]Device, 0, len(reply))
	for _, source := range reply {
		if source == nil {
			continue
		}
		devices = append(devices, describeSource(source, def.ID()))
	}
	return devices, nil
}

func describeSource(source *pulseproto.GetSourceInfoReply, defaultID string) Device {
	return Device{
		ID:          source.SourceName,
		Description: source.Device,
		State:       sourceStateString(source.State),
		Available:   sourceAvailable(source),
		Muted:       source.Mute,
		Default:     source.SourceName == defaultID,
	}
}

// SelectDevice resolves the configured input and fallback preferences against
// the live source list.
func SelectDevice(ctx context.Context, input string, fallback string) (Selection, error) {
	devices, err := ListDevices(ctx)
	if err != nil {
		return Selection{}, err
	}
	return selectDeviceFromList(devices, input, fallback)
}

// selectDeviceFromList picks a capture source. The configured input wins when
// it is usable; a muted or unavailable input falls through to the fallback
// preference, which must itself be usable.
func selectDeviceFromList(devices []Device, input string, fallback string) (Selection, error) {
	if len(devices) == 0 {
		return Selection{}, errors.New("no audio input devices found")
	}

	primary, err := pickPreferred(devices, normalizeTerm(input))
	if err != nil {
		return Selection{}, err
	}
	if primary.Available && !primary.Muted {
		return Selection{Device: *primary}, nil
	}

	reason := "unavailable"
	if primary.Muted {
		reason = "muted"
	}

	var alternate *Device
	if term := normalizeTerm(fallback); term != "" {
		if alternate = matchDevice(devices, term); alternate == nil {
			return Selection{}, fmt.Errorf("primary input %q is %s and fallback %q not found", primary.ID, reason, term)
		}
	} else {
		if alternate = serverDefault(devices); alternate == nil {
			return Selection{}, fmt.Errorf("primary input %q is %s and no usable fallback: default audio source is unavailable", primary.ID, reason)
		}
	}

	if !alternate.Available {
		return Selection{}, fmt.Errorf("audio fallback device %q is not available", alternate.ID)
	}
	if alternate.Muted {
		return Selection{}, fmt.Errorf("audio fallback device %q is muted", alternate.ID)
	}

	return Selection{
		Device:   *alternate,
		Warning:  fmt.Sprintf("audio.input %q is %s; switching to %q", primary.ID, reason, alternate.ID),
		Fallback: primary.ID != alternate.ID,
	}, nil
}

// normalizeTerm lowercases a device preference; "default" and blank both mean
// the server default.
func normalizeTerm(term string) string {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "default" {
		return ""
	}
	return term
}

func pickPreferred(devices []Device, term string) (*Device, error) {
	if term == "" {
		if d := serverDefault(devices); d != nil {
			return d, nil
		}
		return nil, errors.New("default audio source is unavailable")
	}
	if d := matchDevice(devices, term); d != nil {
		return d, nil
	}
	return nil, fmt.Errorf("audio.input %q did not match any device", term)
}

func serverDefault(devices []Device) *Device {
	for i := range devices {
		if devices[i].Default {
			return &devices[i]
		}
	}
	return nil
}

// matchDevice returns the first device whose id or description contains term.
func matchDevice(devices []Device, term string) *Device {
	for i := range devices {
		if deviceMatches(devices[i], term) {
			return &devices[i]
		}
	}
	return nil
}

// deviceMatches does a case-insensitive substring match on id and description.
func deviceMatches(device Device, term string) bool {
	if term == "" {
		return false
	}
	term = strings.ToLower(term)
	return strings.Contains(strings.ToLower(device.ID), term) ||
		strings.Contains(strings.ToLower(device.Description), term)
}

// Capture streams fixed-size PCM chunks from one selected Pulse source.
//
// The Pulse server connection is process-shared state: it is acquired on start
// and held until Stop, and the record stream competes with any other consumer
// of the same source.
type Capture struct {
	device Device

	client *pulse.Client
	stream *pulse.RecordStream

	chunks chan []byte
	quit   chan struct{}

	mu      sync.Mutex
	tail    []byte
	stopped bool

	writers sync.WaitGroup
	bytes   atomic.Int64
}

// StartCapture opens a 16kHz mono s16 record stream on the selected source.
// Any partially created client or stream is retracted before an error
// propagates, leaving no tap installed.
func StartCapture(ctx context.Context, selected Device) (*Capture, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("voxkey"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}

	capture := &Capture{
		device: selected,
		client: client,
		chunks: make(chan []byte, 128),
		quit:   make(chan struct{}),
	}
	if err := capture.openStream(selected.ID); err != nil {
		capture.Close()
		return nil, err
	}
	capture.stream.Start()

	go func() {
		<-ctx.Done()
		_ = capture.Stop()
	}()
	return capture, nil
}

func (c *Capture) openStream(sourceID string) error {
	source, err := c.client.SourceByID(sourceID)
	if err != nil {
		return fmt.Errorf("resolve source %q: %w", sourceID, err)
	}

	stream, err := c.client.NewRecord(
		pulse.NewWriter(writerFunc(c.onPCM), pulseproto.FormatInt16LE),
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(16000),
		pulse.RecordBufferFragmentSize(chunkSizeBytes),
		pulse.RecordMediaName("voxkey transcription"),
	)
	if err != nil {
		return fmt.Errorf("create pulse record stream: %w", err)
	}
	c.stream = stream
	return nil
}

// Device returns capture metadata for logging and diagnostics.
func (c *Capture) Device() Device {
	return c.device
}

// Chunks returns the PCM stream as fixed-size byte slices.
func (c *Capture) Chunks() <-chan []byte {
	return c.chunks
}

// BytesCaptured reports total bytes accepted from Pulse.
func (c *Capture) BytesCaptured() int64 {
	return c.bytes.Load()
}

// Stop halts the stream, flushes any residual PCM as a short final chunk,
// and closes Chunks exactly once.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	close(c.quit)
	c.mu.Unlock()

	if c.stream != nil {
		c.stream.Stop()
		c.stream.Close()
	}
	if c.client != nil {
		c.client.Close()
	}

	// After this no onPCM call is in flight and none will start.
	c.writers.Wait()

	c.mu.Lock()
	tail := c.tail
	c.tail = nil
	c.mu.Unlock()

	if len(tail) > 0 {
		select {
		case c.chunks <- tail:
		default:
		}
	}

	close(c.chunks)
	return nil
}

// Close is a convenience alias for Stop.
func (c *Capture) Close() {
	_ = c.Stop()
}

// onPCM accepts raw frames from Pulse, slices them into chunkSizeBytes
// pieces, and delivers them in capture order. Returns io.EOF once stopped so
// the library retires the writer.
func (c *Capture) onPCM(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return 0, io.EOF
	}
	// Registering under the same lock as c.stopped keeps Add from racing
	// Stop's Wait.
	c.writers.Add(1)

	c.tail = append(c.tail, buffer...)
	var ready [][]byte
	for len(c.tail) >= chunkSizeBytes {
		chunk := make([]byte, chunkSizeBytes)
		copy(chunk, c.tail[:chunkSizeBytes])
		c.tail = c.tail[chunkSizeBytes:]
		ready = append(ready, chunk)
	}
	c.mu.Unlock()
	defer c.writers.Done()

	c.bytes.Add(int64(len(buffer)))

	for _, chunk := range ready {
		select {
		case <-c.quit:
			return 0, io.EOF
		case c.chunks <- chunk:
		}
	}

	return len(buffer), nil
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}

var sourceStates = map[uint32]string{
	0: "running",
	1: "idle",
	2: "suspended",
}

func sourceStateString(state uint32) string {
	if name, ok := sourceStates[state]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", state)
}

// sourceAvailable inspects the active port when the source reports ports.
// Pulse encodes availability as unknown=0, no=1, yes=2; only an explicit
// "no" disqualifies the source.
func sourceAvailable(source *pulseproto.GetSourceInfoReply) bool {
	if source == nil {
		return false
	}
	for _, port := range source.Ports {
		if port.Name == source.ActivePortName {
			return port.Available != 1
		}
	}
	return true
}
