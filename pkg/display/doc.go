// Package display implements the Broadway display server: it owns a table
// of windows with pixel content, mirrors it to at most one connected
// browser client over the Broadway text protocol, and routes the browser's
// input events back to the embedding application.
//
// # Architecture
//
// The server consists of a few cooperating pieces:
//
//   - Server: the public handle; an http.Handler serving the embedded
//     client page and the /socket and /socket-bin WebSocket endpoints
//   - windowTable: the window set with its stacking order
//   - tracker: the last-seen input snapshot (pointer, modifiers, screen)
//     and the server time base
//   - grabState: the pointer grab with its timestamp rules
//   - serializer: stages output commands and decides between full frames
//     and XOR delta patches
//
// # Threading model
//
// One goroutine, the server loop, owns every piece of display state.
// Exported operations post closures to it; connection readers parse frames
// on their own goroutines and post input batches. The loop drains input in
// bounded slices per pass, so posted work interleaves with a busy client,
// and each pass flushes at most one WebSocket message.
//
// Sync is the only operation that blocks: it waits off-loop for the
// client's sync reply. The OnEvent, OnConnect and OnDisconnect callbacks
// run on the loop and must not call the server's exported operations;
// hand work that needs them to another goroutine.
//
// # Connection lifecycle
//
// A new upgrade displaces the current connection: the old one receives a
// disconnected command and is torn down, then the complete display state is
// replayed to the new connection (creates in stacking order, then transient
// relations, then full frames, then shows, then the active grab) before any
// of its input is processed. Input state (the tracker snapshot) and the
// grab survive disconnects.
package display
