package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/oxide-run/oxide/internal/event"
	"github.com/oxide-run/oxide/internal/storage"
	"github.com/oxide-run/oxide/pkg/types"
)

// recentHistoryCap bounds the cross-session recall ring (§4.3).
const recentHistoryCap = 100

// Store is the per-project session store (C3): one JSON record per
// write, keyed by session id. It also owns the bounded recent-history
// ring used by the REPL for input recall across sessions.
//
// A single Store instance tracks one "active" session's in-memory
// transcript at a time; Append mutates that cache before persisting,
// so repeated appends to the session currently being worked on don't
// need a re-read from disk. Switching the active session flushes the
// old one first.
type Store struct {
	mu sync.Mutex

	storage *storage.Storage

	activeID    string
	activeMeta  types.SessionMetadata
	active      types.Transcript

	recent types.RecentHistory
}

// NewStore creates a store backed by storage, which should be rooted
// at a project's .oxide directory.
func NewStore(store *storage.Storage) *Store {
	s := &Store{storage: store, recent: types.RecentHistory{Cap: recentHistoryCap}}
	_ = store.Get(context.Background(), []string{"recent_history"}, &s.recent)
	if s.recent.Cap <= 0 {
		s.recent.Cap = recentHistoryCap
	}
	return s
}

func generateSessionID() string {
	return ulid.Make().String()
}

// Create starts a new, empty session and makes it the active one.
func (s *Store) Create(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.flushLocked(ctx); err != nil {
		return "", err
	}

	now := time.Now().UnixMilli()
	id := generateSessionID()
	s.activeID = id
	s.activeMeta = types.SessionMetadata{SessionID: id, CreatedAt: now, LastUpdated: now}
	s.active = nil

	if err := s.persistLocked(ctx); err != nil {
		return "", err
	}

	event.Publish(event.Event{
		Type: event.SessionCreated,
		Data: event.SessionCreatedData{Metadata: s.activeMeta},
	})

	return id, nil
}

// Load returns the transcript and metadata for sessionID, making it
// the active session (flushing whatever was active before).
func (s *Store) Load(ctx context.Context, sessionID string) (types.Transcript, types.SessionMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeID == sessionID {
		return append(types.Transcript{}, s.active...), s.activeMeta, nil
	}

	if err := s.flushLocked(ctx); err != nil {
		return nil, types.SessionMetadata{}, err
	}

	file, err := s.readLocked(ctx, sessionID)
	if err != nil {
		return nil, types.SessionMetadata{}, err
	}

	s.activeID = sessionID
	s.activeMeta = file.Metadata
	s.active = fromSerializable(file.Messages)

	return append(types.Transcript{}, s.active...), s.activeMeta, nil
}

// Switch flushes the currently active session (if any) and replaces
// it with sessionID, returning its transcript. Identical to Load but
// named separately to match the store's §4.3 operation vocabulary.
func (s *Store) Switch(ctx context.Context, sessionID string) (types.Transcript, error) {
	transcript, _, err := s.Load(ctx, sessionID)
	return transcript, err
}

// Append adds msg to sessionID's transcript and persists the session
// file. An I/O error here is surfaced to the caller, which should
// treat its own in-memory transcript as authoritative and may retry
// the append rather than lose the message (§4.3 failure policy).
func (s *Store) Append(ctx context.Context, sessionID string, msg types.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeID != sessionID {
		if err := s.flushLocked(ctx); err != nil {
			return err
		}
		file, err := s.readLocked(ctx, sessionID)
		if err != nil {
			return err
		}
		s.activeID = sessionID
		s.activeMeta = file.Metadata
		s.active = fromSerializable(file.Messages)
	}

	if msg.Created == 0 {
		msg.Created = time.Now().UnixMilli()
	}
	s.active = append(s.active, msg)
	s.activeMeta.MessageCount = len(s.active)
	s.activeMeta.LastUpdated = time.Now().UnixMilli()

	if err := s.persistLocked(ctx); err != nil {
		return fmt.Errorf("append message to session %s: %w", sessionID, err)
	}

	event.PublishSync(event.Event{
		Type: event.MessageCreated,
		Data: event.MessageCreatedData{SessionID: sessionID, Message: msg},
	})
	return nil
}

// SetTitle updates the active-or-named session's title.
func (s *Store) SetTitle(ctx context.Context, sessionID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeID != sessionID {
		file, err := s.readLocked(ctx, sessionID)
		if err != nil {
			return err
		}
		s.activeID = sessionID
		s.activeMeta = file.Metadata
		s.active = fromSerializable(file.Messages)
	}

	s.activeMeta.Title = title
	if err := s.persistLocked(ctx); err != nil {
		return err
	}

	event.Publish(event.Event{
		Type: event.SessionUpdated,
		Data: event.SessionUpdatedData{Metadata: s.activeMeta},
	})
	return nil
}

// Enumerate scans every session file and returns its metadata,
// newest-first.
func (s *Store) Enumerate(ctx context.Context) ([]types.SessionMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.flushLocked(ctx); err != nil {
		return nil, err
	}

	var out []types.SessionMetadata
	err := s.storage.Scan(ctx, []string{"sessions"}, func(key string, data json.RawMessage) error {
		var file types.SessionFile
		if err := json.Unmarshal(data, &file); err != nil {
			return nil
		}
		out = append(out, file.Metadata)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].LastUpdated > out[j].LastUpdated })
	return out, nil
}

// Delete removes sessionID's file. Deleting the active session clears
// the in-memory cache.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.storage.Delete(ctx, []string{"sessions", sessionID}); err != nil {
		return err
	}

	if s.activeID == sessionID {
		s.activeID = ""
		s.activeMeta = types.SessionMetadata{}
		s.active = nil
	}

	event.Publish(event.Event{Type: event.SessionDeleted, Data: event.SessionDeletedData{SessionID: sessionID}})
	return nil
}

// Replace overwrites sessionID's entire transcript, used by context
// compaction to splice a summary message in for the messages it
// replaces.
func (s *Store) Replace(ctx context.Context, sessionID string, transcript types.Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeID != sessionID {
		file, err := s.readLocked(ctx, sessionID)
		if err != nil {
			return err
		}
		s.activeID = sessionID
		s.activeMeta = file.Metadata
	}

	s.active = transcript
	s.activeMeta.MessageCount = len(transcript)
	s.activeMeta.LastUpdated = time.Now().UnixMilli()
	return s.persistLocked(ctx)
}

// PushRecent records a user input in the cross-session recall ring
// and persists it.
func (s *Store) PushRecent(ctx context.Context, entry string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent.Push(entry)
	return s.storage.Put(ctx, []string{"recent_history"}, &s.recent)
}

// RecentHistory returns a copy of the recall ring's entries, oldest first.
func (s *Store) RecentHistory() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.recent.Entries))
	copy(out, s.recent.Entries)
	return out
}

func (s *Store) flushLocked(ctx context.Context) error {
	if s.activeID == "" {
		return nil
	}
	return s.persistLocked(ctx)
}

func (s *Store) persistLocked(ctx context.Context) error {
	file := types.SessionFile{Metadata: s.activeMeta, Messages: toSerializable(s.active)}
	return s.storage.Put(ctx, []string{"sessions", s.activeID}, &file)
}

func (s *Store) readLocked(ctx context.Context, sessionID string) (types.SessionFile, error) {
	var file types.SessionFile
	if err := s.storage.Get(ctx, []string{"sessions", sessionID}, &file); err != nil {
		return types.SessionFile{}, err
	}
	return file, nil
}

// toSerializable flattens the in-memory transcript to the wire
// format. An assistant message's text and tool-use blocks collapse
// into one SerializableMessage (text + tool_calls); each tool-result
// block becomes its own "tool"-role message, since the wire format
// (and ConvertToEinoMessages, which assumes one tool_call_id per
// message) has no slot for more than one result per message.
func toSerializable(transcript types.Transcript) []types.SerializableMessage {
	out := make([]types.SerializableMessage, 0, len(transcript))
	for _, msg := range transcript {
		var text string
		var calls []types.ToolCallRecord
		var toolResults []types.SerializableMessage

		for _, b := range msg.Content {
			switch b.Type {
			case types.BlockText:
				text += b.Text
			case types.BlockToolUse:
				argsJSON, _ := json.Marshal(b.ToolInput)
				calls = append(calls, types.ToolCallRecord{
					ID:   b.ToolUseID,
					Type: "function",
					Function: types.ToolFunction{
						Name:      b.ToolName,
						Arguments: string(argsJSON),
					},
				})
			case types.BlockToolResult:
				body := b.ResultBody
				if b.ResultError {
					body = "Error: " + body
				}
				toolResults = append(toolResults, types.SerializableMessage{
					Role:       "tool",
					Content:    body,
					ToolCallID: b.ToolUseID,
				})
			}
		}

		if text != "" || len(calls) > 0 {
			out = append(out, types.SerializableMessage{
				Role:      string(msg.Role),
				Content:   text,
				ToolCalls: calls,
			})
		}
		out = append(out, toolResults...)
	}
	return out
}

// fromSerializable reconstructs the in-memory transcript from the
// wire format.
func fromSerializable(messages []types.SerializableMessage) types.Transcript {
	out := make(types.Transcript, 0, len(messages))
	for _, sm := range messages {
		var blocks []types.ContentBlock
		role := types.Role(sm.Role)

		if sm.Role == "tool" {
			role = types.RoleToolResult
			blocks = append(blocks, types.ToolResultBlock(sm.ToolCallID, sm.Content, false))
		} else {
			if sm.Content != "" {
				blocks = append(blocks, types.TextBlock(sm.Content))
			}
			for _, tc := range sm.ToolCalls {
				var input map[string]any
				_ = json.Unmarshal([]byte(tc.Function.Arguments), &input)
				blocks = append(blocks, types.ToolUseBlock(tc.ID, tc.Function.Name, input))
			}
		}

		out = append(out, types.Message{Role: role, Content: blocks})
	}
	return out
}
