package agentlink

import "github.com/agentlink/agentlink/internal/config"

// Transport carries line-oriented JSON documents between the SDK and an
// agent. The default implementation spawns the agent CLI as a subprocess;
// WithTransport injects a custom one, which tests use to script the agent
// side.
//
// Implementations must support one concurrent reader (ReadStream is called
// once) and serialize writes internally.
type Transport = config.Transport
