package engine

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
)

// waitForReady blocks until conn reaches the Ready state or ctx expires.
// A connection that shuts down while waiting is reported as an error.
func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	state := conn.GetState()
	for state != connectivity.Ready {
		if state == connectivity.Shutdown {
			return errors.New("grpc connection shut down before becoming ready")
		}
		if !conn.WaitForStateChange(ctx, state) {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fmt.Errorf("grpc connection stalled in state %s", state)
		}
		state = conn.GetState()
	}
	return nil
}
