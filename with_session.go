package agentlink

import (
	"context"
	"fmt"
)

// WithSession manages session lifecycle with automatic cleanup.
//
// It creates a session, connects it with the provided options, runs fn,
// and closes the session when fn returns. If Close fails after fn
// succeeded, the close error is logged, not returned.
//
//	err := agentlink.WithSession(ctx, func(s *agentlink.Session) error {
//	    if err := s.Send(ctx, "Hello"); err != nil {
//	        return err
//	    }
//	    for msg, err := range s.Response(ctx) {
//	        if err != nil {
//	            return err
//	        }
//	        // process message
//	        _ = msg
//	    }
//	    return nil
//	},
//	    agentlink.WithPermissionMode("acceptEdits"),
//	)
func WithSession(ctx context.Context, fn func(*Session) error, opts ...Option) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	options := applyOptions(opts)

	log := options.Logger
	if log == nil {
		log = NopLogger()
	}

	sess := NewSession()
	if err := sess.Connect(ctx, opts...); err != nil {
		return fmt.Errorf("connect session: %w", err)
	}

	defer func() {
		if closeErr := sess.Close(); closeErr != nil {
			log.Warn("Failed to close session", "error", closeErr)
		}
	}()

	return fn(sess)
}
