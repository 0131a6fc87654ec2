// Package replcmd dispatches the interactive REPL's slash commands
// (§6): /help, /clear, /config, /history, /load, /sessions, /delete,
// /quit and /exit. Anything not starting with "/" is not a command and
// should be passed straight to the agent loop.
package replcmd
