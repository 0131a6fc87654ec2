/*
Package event provides a type-safe pub/sub event bus used to decouple
the session store, tool wrapper pipeline, HITL gatekeeper, and task
graph from whatever is observing them (REPL, HTTP+SSE server).

It is built on top of watermill's gochannel for infrastructure while
keeping direct-call semantics so subscribers receive concretely typed
event data rather than re-decoding JSON.

# Event types

Session: session.created, session.updated, session.deleted.

Message: message.created, message.part.updated (streaming text deltas
and completed content blocks, §4.8).

Tool: tool_call.started, tool_call.completed — the wrapper pipeline's
progress-begin/progress-end steps (§4.5).

Permission: permission.required, permission.resolved — the HITL
gatekeeper's confirmation flow (§4.6).

Task: task.ready — emitted when a task graph mutation satisfies the
last pending dependency of another task (§4.4).

File: file.edited.

# Usage

	unsubscribe := event.Subscribe(event.ToolCallStarted, func(e event.Event) {
		data := e.Data.(event.ToolCallStartedData)
		log.Info().Str("tool", data.Tool).Msg("tool call started")
	})
	defer unsubscribe()

	event.Publish(event.Event{
		Type: event.ToolCallStarted,
		Data: event.ToolCallStartedData{SessionID: sid, CallID: cid, Tool: "read_file"},
	})

PublishSync blocks until every subscriber has run; subscribers called
this way must not re-enter Publish/PublishSync or hold locks the
publisher needs. Use Reset() to clear the global bus between tests.
*/
package event
