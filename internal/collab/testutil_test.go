package collab

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type appendedChat struct {
	notebookID string
	author     Identity
	text       string
}

// fakeChatStore is an in-memory ChatStore with a switchable failure mode.
type fakeChatStore struct {
	mu        sync.Mutex
	appendErr error
	appended  []appendedChat
	history   map[string][]StoredChatMessage
}

func newFakeChatStore() *fakeChatStore {
	return &fakeChatStore{
		history: make(map[string][]StoredChatMessage),
	}
}

func (s *fakeChatStore) AppendChatMessage(_ context.Context, notebookID string, author Identity, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.appended = append(s.appended, appendedChat{notebookID: notebookID, author: author, text: text})
	return nil
}

func (s *fakeChatStore) RecentChatMessages(_ context.Context, notebookID string, limit int) ([]StoredChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.history[notebookID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (s *fakeChatStore) appendedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.appended)
}

func newTestHub(store ChatStore) *Hub {
	if store == nil {
		store = newFakeChatStore()
	}
	return NewHub(HubConfig{Store: store})
}

// newTestClient builds a registered client whose outbound frames stay in its
// send queue, where the recv helpers can inspect them.
func newTestClient(h *Hub, identity Identity) *Client {
	c := NewClient(h, nil, identity)
	h.handleRegister(c)
	return c
}

// inbound builds a client frame the way the read pump would.
func inbound(t *testing.T, msgType MessageType, payload any) *Message {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return &Message{Type: msgType, Data: data}
}

// recv waits for the client's next outbound message.
func recv(t *testing.T, c *Client) *Message {
	t.Helper()
	select {
	case frame := <-c.send:
		var msg Message
		require.NoError(t, json.Unmarshal(frame, &msg))
		return &msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for outbound message")
		return nil
	}
}

// recvType waits for the next outbound message and asserts its type.
func recvType(t *testing.T, c *Client, want MessageType) *Message {
	t.Helper()
	msg := recv(t, c)
	require.Equal(t, want, msg.Type)
	return msg
}

// tryRecv returns the next queued outbound message, or nil if none is queued.
func tryRecv(t *testing.T, c *Client) *Message {
	t.Helper()
	select {
	case frame := <-c.send:
		var msg Message
		require.NoError(t, json.Unmarshal(frame, &msg))
		return &msg
	default:
		return nil
	}
}

// drain discards everything currently queued for the client.
func drain(c *Client) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

func decodePayload[T any](t *testing.T, msg *Message) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(msg.Data, &out))
	return out
}

// joinNotebook runs the join event and drains the join responses.
func joinNotebook(t *testing.T, h *Hub, c *Client, notebookID string) {
	t.Helper()
	h.dispatch(c, inbound(t, MessageTypeJoinNotebook, JoinNotebookData{NotebookID: notebookID}))
	recvType(t, c, MessageTypeRoomUsers)
	drain(c)
}
