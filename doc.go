// Package agentlink is a Go SDK for driving an agent CLI as a subprocess.
//
// It speaks the CLI's line-oriented JSON protocol over stdio: one-shot
// queries with Query, multi-turn streaming input with QueryStream, and
// fully interactive conversations with Session. On top of the message
// stream it runs the bidirectional control protocol, which lets the agent
// call back into the host process for tool permissions, lifecycle hooks,
// and in-process tool servers.
//
// A minimal query:
//
//	for msg, err := range agentlink.Query(ctx, "What is 2+2?") {
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    if m, ok := msg.(*agentlink.AssistantMessage); ok {
//	        // handle the response
//	        _ = m
//	    }
//	}
//
// Logging is disabled by default; pass WithLogger to enable it.
package agentlink
