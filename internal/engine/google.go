package engine

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	gstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
)

// GoogleConfig controls dialing and recognition behavior for the
// Speech-to-Text streaming backend. Endpoint may point at a local
// API-compatible proxy when Insecure is set.
type GoogleConfig struct {
	Endpoint             string
	LanguageCode         string
	Model                string
	AutomaticPunctuation bool
	Insecure             bool
	DialTimeout          time.Duration
	DebugResponseSink    io.Writer
}

// Google opens StreamingRecognize streams against one configured endpoint.
type Google struct {
	cfg GoogleConfig
}

// NewGoogle validates the config and returns a ready engine.
func NewGoogle(cfg GoogleConfig) (*Google, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("engine endpoint is empty")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 3 * time.Second
	}
	if strings.TrimSpace(cfg.LanguageCode) == "" {
		cfg.LanguageCode = "en-US"
	}
	return &Google{cfg: cfg}, nil
}

// Available probes the endpoint with a short-lived connection. It never
// opens a recognition stream, so a true result costs no backend work.
func (g *Google) Available(ctx context.Context) bool {
	conn, err := grpc.NewClient(
		g.cfg.Endpoint,
		grpc.WithTransportCredentials(g.transportCredentials()),
	)
	if err != nil {
		return false
	}
	defer func() { _ = conn.Close() }()

	readyCtx, cancel := context.WithTimeout(ctx, g.cfg.DialTimeout)
	defer cancel()
	conn.Connect()
	return waitForReady(readyCtx, conn) == nil
}

// transportCredentials picks plaintext for local endpoints and TLS otherwise.
func (g *Google) transportCredentials() credentials.TransportCredentials {
	if g.cfg.Insecure {
		return insecure.NewCredentials()
	}
	return credentials.NewTLS(&tls.Config{})
}

// Open dials the endpoint, sends the streaming config, and starts the
// receive loop delivering results to cb.
func (g *Google) Open(ctx context.Context, cb Callback) (Stream, error) {
	if cb == nil {
		return nil, errors.New("recognition callback is nil")
	}

	streamCtx, cancel := context.WithCancel(ctx)

	var (
		conn *grpc.ClientConn
		opts []option.ClientOption
	)
	if g.cfg.Insecure {
		c, err := grpc.NewClient(
			g.cfg.Endpoint,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("dial speech grpc %q: %w", g.cfg.Endpoint, err)
		}

		readyCtx, readyCancel := context.WithTimeout(streamCtx, g.cfg.DialTimeout)
		c.Connect()
		err = waitForReady(readyCtx, c)
		readyCancel()
		if err != nil {
			_ = c.Close()
			cancel()
			return nil, fmt.Errorf("wait for speech grpc readiness: %w", err)
		}

		conn = c
		opts = append(opts, option.WithGRPCConn(conn))
	} else {
		opts = append(opts, option.WithEndpoint(g.cfg.Endpoint))
	}

	client, err := speech.NewClient(streamCtx, opts...)
	if err != nil {
		if conn != nil {
			_ = conn.Close()
		}
		cancel()
		return nil, fmt.Errorf("create speech client: %w", err)
	}

	stream, err := client.StreamingRecognize(streamCtx)
	if err != nil {
		_ = client.Close()
		cancel()
		return nil, fmt.Errorf("open streaming recognizer: %w", err)
	}

	if err := stream.Send(g.streamingConfigRequest()); err != nil {
		_ = client.Close()
		cancel()
		return nil, fmt.Errorf("send initial streaming config: %w", err)
	}

	s := &googleStream{
		client:    client,
		stream:    stream,
		cancelCtx: cancel,
		cb:        cb,
		debugSink: g.cfg.DebugResponseSink,
	}
	go s.recvLoop()
	return s, nil
}

// streamingConfigRequest builds the config request sent before any audio.
// Interim results stay disabled: callers only act on final transcripts.
func (g *Google) streamingConfigRequest() *speechpb.StreamingRecognizeRequest {
	return &speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   speechpb.RecognitionConfig_LINEAR16,
					SampleRateHertz:            16000,
					AudioChannelCount:          1,
					LanguageCode:               g.cfg.LanguageCode,
					EnableAutomaticPunctuation: g.cfg.AutomaticPunctuation,
					Model:                      strings.TrimSpace(g.cfg.Model),
				},
				InterimResults: false,
			},
		},
	}
}

// googleStream wraps one active StreamingRecognize RPC lifecycle.
type googleStream struct {
	client    *speech.Client
	stream    speechpb.Speech_StreamingRecognizeClient
	cancelCtx context.CancelFunc
	cb        Callback

	debugSink io.Writer

	closeOnce sync.Once

	mu         sync.Mutex
	closedSend bool
	recvErr    error
}

// recvLoop receives recognition responses until stream close or error, then
// delivers the single terminal callback.
func (s *googleStream) recvLoop() {
	defer s.closeResources()

	for {
		resp, err := s.stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.cb(Result{}, io.EOF)
				return
			}
			s.mu.Lock()
			s.recvErr = err
			s.mu.Unlock()
			s.cb(Result{}, err)
			return
		}

		s.dumpResponse(resp)

		if respErr := resp.GetError(); respErr != nil {
			err := gstatus.ErrorProto(respErr)
			s.mu.Lock()
			s.recvErr = err
			s.mu.Unlock()
			s.cb(Result{}, err)
			return
		}

		for _, result := range responseResults(resp) {
			s.cb(result, nil)
		}
	}
}

// SendAudio sends one chunk of PCM audio over the active stream.
func (s *googleStream) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.mu.Lock()
	closed := s.closedSend
	recvErr := s.recvErr
	s.mu.Unlock()

	if closed {
		return errors.New("stream already closed for sending")
	}
	if recvErr != nil {
		return fmt.Errorf("stream receive loop failed: %w", recvErr)
	}

	return s.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{AudioContent: chunk},
	})
}

// EndAudio closes send-side audio. Remaining results are delivered through
// the callback before the receive loop exits.
func (s *googleStream) EndAudio() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closedSend {
		return nil
	}
	s.closedSend = true
	return s.stream.CloseSend()
}

// Cancel aborts the RPC. It never waits for the receive loop: Cancel may be
// invoked from inside the result callback, and the loop delivers its own
// terminal callback as it exits.
func (s *googleStream) Cancel() error {
	s.cancelCtx()
	return nil
}

func (s *googleStream) closeResources() {
	s.closeOnce.Do(func() {
		_ = s.client.Close()
		s.cancelCtx()
	})
}

// dumpResponse writes raw responses to the debug sink when configured.
func (s *googleStream) dumpResponse(resp *speechpb.StreamingRecognizeResponse) {
	sink := s.debugSink
	if sink == nil {
		return
	}
	b, err := protojson.Marshal(resp)
	if err != nil {
		return
	}
	_, _ = sink.Write(append(b, '\n'))
}

// responseResults extracts non-empty top-alternative transcripts.
func responseResults(resp *speechpb.StreamingRecognizeResponse) []Result {
	var results []Result
	for _, result := range resp.GetResults() {
		alternatives := result.GetAlternatives()
		if len(alternatives) == 0 {
			continue
		}
		text := strings.TrimSpace(alternatives[0].GetTranscript())
		if text == "" {
			continue
		}
		results = append(results, Result{Text: text, Final: result.GetIsFinal()})
	}
	return results
}

// IsUnauthorized reports whether err is a backend rejection of the caller
// rather than a transport or recognition failure.
func IsUnauthorized(err error) bool {
	st, ok := gstatus.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case codes.PermissionDenied, codes.Unauthenticated:
		return true
	default:
		return false
	}
}
