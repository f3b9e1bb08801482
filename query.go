package agentlink

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agentlink/agentlink/internal/config"
	"github.com/agentlink/agentlink/internal/engine"
	"github.com/agentlink/agentlink/internal/proc"
	"github.com/agentlink/agentlink/internal/wire"
)

// defaultStreamCloseTimeout bounds the wait for a result message before
// closing stdin when callback traffic may still be in flight.
const defaultStreamCloseTimeout = 60 * time.Second

// streamCloseTimeout returns the stdin close timeout, overridable in
// seconds via AGENTLINK_STREAM_CLOSE_TIMEOUT.
func streamCloseTimeout() time.Duration {
	if raw := os.Getenv("AGENTLINK_STREAM_CLOSE_TIMEOUT"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}

	return defaultStreamCloseTimeout
}

// validateOptions checks cross-field constraints and applies the implied
// settings.
func validateOptions(options *Options) error {
	if options.CanUseTool != nil {
		if options.PermissionPromptToolName != "" {
			return fmt.Errorf("permission callback conflicts with explicit permission prompt tool %q",
				options.PermissionPromptToolName)
		}

		options.PermissionPromptToolName = "stdio"
	}

	return nil
}

func componentLogger(options *Options, component string) *slog.Logger {
	log := options.Logger
	if log == nil {
		log = NopLogger()
	}

	return log.With("component", component)
}

// Query executes a one-shot query and returns an iterator of messages.
//
// The iterator yields messages as they arrive: assistant responses, tool
// use, and a final result message. Errors during setup or execution are
// yielded inline; fatal ones end the iteration.
//
//	for msg, err := range agentlink.Query(ctx, "What is 2+2?",
//	    agentlink.WithPermissionMode("acceptEdits"),
//	    agentlink.WithMaxTurns(1),
//	) {
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    switch m := msg.(type) {
//	    case *agentlink.AssistantMessage:
//	        // handle the response
//	    case *agentlink.ResultMessage:
//	        // handle the final result
//	    }
//	}
//
// When the configuration needs the bidirectional control protocol (hooks,
// a permission callback, or tool servers), the query transparently runs in
// streaming mode; one-shot mode cannot carry callback traffic.
func Query(ctx context.Context, prompt string, opts ...Option) iter.Seq2[Message, error] {
	return func(yield func(Message, error) bool) {
		options := applyOptions(opts)

		if err := validateOptions(options); err != nil {
			yield(nil, err)

			return
		}

		if options.NeedsControlProtocol() {
			for msg, err := range QueryStream(ctx, SingleMessage(prompt), opts...) {
				if !yield(msg, err) {
					return
				}
			}

			return
		}

		log := componentLogger(options, "query")

		transport := options.Transport
		if transport == nil {
			transport = proc.New(log, prompt, options, false)
		}

		if err := transport.Connect(ctx); err != nil {
			yield(nil, err)

			return
		}

		eng := engine.New(log, transport, options)
		eng.Start(ctx)

		defer func() { _ = eng.Dispose() }()

		// One-shot mode: the CLI waits for stdin to close before it starts
		// processing.
		if err := transport.EndInput(); err != nil {
			yield(nil, fmt.Errorf("close stdin: %w", err))

			return
		}

		drainMessages(ctx, eng, yield, nil)
	}
}

// QueryStream executes a streaming query fed by a turn stream.
//
// Turns are written to the agent's stdin as they are yielded; input ends
// when the stream does. Responses for all turns arrive interleaved on the
// returned iterator, each turn closed by a result message.
//
//	turns := agentlink.MessagesFromSlice([]agentlink.UserTurn{
//	    agentlink.NewUserTurn("Hello"),
//	    agentlink.NewUserTurn("How are you?"),
//	})
//
//	for msg, err := range agentlink.QueryStream(ctx, turns) {
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    // handle msg
//	}
func QueryStream(ctx context.Context, turns TurnStream, opts ...Option) iter.Seq2[Message, error] {
	return func(yield func(Message, error) bool) {
		options := applyOptions(opts)

		if err := validateOptions(options); err != nil {
			yield(nil, err)

			return
		}

		log := componentLogger(options, "query_stream")

		transport := options.Transport
		if transport == nil {
			transport = proc.New(log, "", options, true)
		}

		if err := transport.Connect(ctx); err != nil {
			yield(nil, err)

			return
		}

		eng := engine.New(log, transport, options)
		eng.Start(ctx)

		defer func() { _ = eng.Dispose() }()

		if _, err := eng.Initialize(ctx); err != nil {
			yield(nil, err)

			return
		}

		g, gCtx := errgroup.WithContext(ctx)

		defer func() { _ = g.Wait() }()

		// With callback traffic possible, closing stdin right after the last
		// turn can cut off in-flight control requests. Hold it open until the
		// result message lands (or the close timeout passes).
		waitForResult := options.NeedsControlProtocol()

		var resultSeen chan struct{}

		var resultOnce sync.Once

		markResult := func() {}

		if waitForResult {
			resultSeen = make(chan struct{})
			markResult = func() {
				resultOnce.Do(func() { close(resultSeen) })
			}

			// Defers run LIFO: markResult fires before g.Wait, so a
			// streamTurns parked on resultSeen is released when the
			// consumer stops without seeing a result.
			defer markResult()
		}

		g.Go(func() error {
			return streamTurns(gCtx, log, transport, eng, turns, resultSeen)
		})

		drainMessages(ctx, eng, yield, markResult)
	}
}

// streamTurns writes each turn and ends input when the stream is done.
func streamTurns(
	ctx context.Context,
	log *slog.Logger,
	transport config.Transport,
	eng *engine.Engine,
	turns TurnStream,
	resultSeen <-chan struct{},
) (err error) {
	defer func() {
		if endErr := transport.EndInput(); endErr != nil && err == nil {
			err = fmt.Errorf("end input: %w", endErr)
		}
	}()

	for turn := range turns {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := eng.WriteTurn(ctx, turn); err != nil {
			return fmt.Errorf("write turn: %w", err)
		}
	}

	if resultSeen != nil {
		select {
		case <-resultSeen:
		case <-time.After(streamCloseTimeout()):
			log.Warn("Timed out waiting for result before closing stdin")
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

// drainMessages yields engine deliveries until the stream ends. onResult,
// when non-nil, is invoked for each result message before yielding it.
func drainMessages(
	ctx context.Context,
	eng *engine.Engine,
	yield func(Message, error) bool,
	onResult func(),
) {
	for {
		select {
		case msg, ok := <-eng.Messages():
			if !ok {
				if err := eng.FatalError(); err != nil {
					yield(nil, err)
				}

				return
			}

			if onResult != nil {
				if _, isResult := msg.(*wire.ResultMessage); isResult {
					onResult()
				}
			}

			if !yield(msg, nil) {
				return
			}

		case <-ctx.Done():
			yield(nil, ctx.Err())

			return
		}
	}
}
