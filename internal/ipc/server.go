package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
)

// Handler processes one command received over the control socket.
type Handler interface {
	Handle(context.Context, Request) Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// Serve answers control-socket clients until ctx is cancelled or the
// listener closes. Each connection carries exactly one request.
func Serve(ctx context.Context, listener net.Listener, handler Handler) error {
	var active sync.WaitGroup

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				active.Wait()
				return nil
			}
			return fmt.Errorf("accept control connection: %w", err)
		}

		active.Add(1)
		go func() {
			defer active.Done()
			answer(ctx, conn, handler)
		}()
	}
}

// answer decodes the connection's request, dispatches it, and writes the
// newline-terminated JSON reply the client expects.
func answer(ctx context.Context, conn net.Conn, handler Handler) {
	defer conn.Close()

	reply := json.NewEncoder(conn)
	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		_ = reply.Encode(Response{Error: fmt.Sprintf("decode request: %v", err)})
		return
	}
	_ = reply.Encode(handler.Handle(ctx, req))
}
