// Package session implements the per-project session store (C3) and
// the agent execution loop (C8).
//
// # Store
//
// Store persists one JSON file per session under sessions/<session_id>,
// tracking the transcript, metadata (id, timestamps, message count,
// title) and a bounded cross-session recent-input ring:
//
//	store := session.NewStore(storage.New(".oxide"))
//	id, err := store.Create(ctx)
//	err = store.Append(ctx, id, types.Message{Role: types.RoleUser, ...})
//	transcript, meta, err := store.Load(ctx, id)
//	sessions, err := store.Enumerate(ctx)
//
// Append surfaces I/O failures to the caller rather than silently
// dropping the message; callers should treat their own in-memory
// transcript as authoritative and may retry.
//
// # Loop
//
// Loop drives one user request to completion: it builds a request
// from the system preamble, the session's transcript and the new
// input, sends it to a provider, and round-trips any tool-use blocks
// through the tool wrapper pipeline until the assistant responds with
// text only, the turn cap is hit, or the context is cancelled.
//
//	loop := session.NewLoop(store, providers, tools, wrapper, agents, config, workDir)
//	result, err := loop.Run(ctx, sessionID, "build", "add a retry to the fetch call")
//
// Loop also implements tool.TaskExecutor, so the task tool can spawn
// a nested loop against a fresh session when a subagent is invoked.
//
// # Compaction and titling
//
// compactTranscript summarizes older messages into a single synthetic
// assistant message once a transcript's estimated size crosses a
// configurable fraction of the model's context budget, keeping a
// fixed number of trailing messages verbatim. ensureTitle generates a
// short session title from the first user message, run once per
// session the first time it would otherwise keep its default title.
package session
