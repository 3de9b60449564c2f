/*
Package provider manages sessions with remote Model-Context-Protocol tool providers.

A Session wraps one MCP client connection for one (caller, provider) pair. It connects
lazily, serialises every operation behind its own lock and tears itself down on any
transport error so that the next use reconnects. The Pool owns sessions, keyed by
(caller, provider), and turns every failure into ToolResult data. A pooled session that
fails is retired rather than reconnected; the pool replaces it and callers waiting on the
old session move to the new one.

# Session states

	Disconnected -> Connecting -> Ready
	any error    -> Disconnected

Binary content returned by a tool is rendered inline as a markdown image with a
base64 data URI: ![image](data:<mime>;base64,<payload>).
*/
package provider
