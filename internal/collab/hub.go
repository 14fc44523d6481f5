package collab

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultHistoryLimit = 50

// StoredChatMessage is one persisted chat line as returned by the chat store.
type StoredChatMessage struct {
	User      Identity  `json:"user"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatStore is the durable-storage collaborator the chat channel calls into.
type ChatStore interface {
	AppendChatMessage(ctx context.Context, notebookID string, author Identity, text string) error
	RecentChatMessages(ctx context.Context, notebookID string, limit int) ([]StoredChatMessage, error)
}

// Relay distributes room frames across service instances. Publish is called
// for every room broadcast; Run delivers frames published by other instances.
type Relay interface {
	Publish(ctx context.Context, notebookID string, frame []byte) error
	Run(ctx context.Context, deliver func(notebookID string, frame []byte))
	Close() error
}

// EventArchiver records accepted coordinator events for downstream consumers.
// Implementations must be best-effort; archiving never affects delivery.
type EventArchiver interface {
	Archive(notebookID string, frame []byte)
}

type clientMessage struct {
	client  *Client
	message *Message
}

// HubConfig carries the hub's dependencies. Store is required; Relay and
// Archiver are optional and nil disables them.
type HubConfig struct {
	Store        ChatStore
	Relay        Relay
	Archiver     EventArchiver
	HistoryLimit int
	Logger       *zap.SugaredLogger
}

// Hub is the coordinator facade: the single owner of the connection
// registry, presence lists and lock table. All mutations of that state
// happen on the run loop, one event at a time, which is what guarantees the
// per-room total order of deliveries. The mutex exists for read-only
// diagnostics; the loop is the sole writer.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*Client // by connection ID
	registry *ConnectionRegistry
	presence *PresenceTracker
	locks    *LockTable

	register   chan *Client
	unregister chan *Client
	inbound    chan *clientMessage

	store        ChatStore
	relay        Relay
	archiver     EventArchiver
	historyLimit int

	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.SugaredLogger
}

func NewHub(cfg HubConfig) *Hub {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		clients:      make(map[string]*Client),
		registry:     NewConnectionRegistry(),
		presence:     NewPresenceTracker(),
		locks:        NewLockTable(),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		inbound:      make(chan *clientMessage),
		store:        cfg.Store,
		relay:        cfg.Relay,
		archiver:     cfg.Archiver,
		historyLimit: historyLimit,
		ctx:          ctx,
		cancel:       cancel,
		logger:       logger,
	}
}

// Run processes hub events until Stop is called. It must run on exactly one
// goroutine; the serialization of this loop is the concurrency model.
func (h *Hub) Run() {
	if h.relay != nil {
		go h.relay.Run(h.ctx, h.deliverRemote)
	}

	for {
		select {
		case client := <-h.register:
			h.handleRegister(client)

		case client := <-h.unregister:
			h.handleDisconnect(client)

		case cm := <-h.inbound:
			h.dispatch(cm.client, cm.message)

		case <-h.ctx.Done():
			h.logger.Info("collaboration hub shutting down")
			return
		}
	}
}

// Stop shuts the run loop down.
func (h *Hub) Stop() {
	h.cancel()
	if h.relay != nil {
		h.relay.Close()
	}
}

// ConnectionCount reports the number of live connections, for diagnostics.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.registry.Len()
}

// RoomPresence reports the current presence list of a room, for diagnostics.
func (h *Hub) RoomPresence(notebookID string) []PresenceEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.presence.Snapshot(notebookID)
}

func (h *Hub) handleRegister(client *Client) {
	h.mu.Lock()
	h.clients[client.id] = client
	h.registry.Register(client.id, client.identity)
	h.mu.Unlock()

	h.logger.Infow("client registered", "connectionID", client.id, "user", client.identity.ID)
}

func (h *Hub) dispatch(client *Client, msg *Message) {
	switch msg.Type {
	case MessageTypeJoinNotebook:
		var data JoinNotebookData
		if !h.decode(client, msg, &data) {
			return
		}
		h.handleJoin(client, data.NotebookID)

	case MessageTypeLeaveNotebook:
		var data LeaveNotebookData
		if !h.decode(client, msg, &data) {
			return
		}
		h.handleLeave(client, data.NotebookID)

	case MessageTypeRequestEditLock:
		var data LockRequestData
		if !h.decode(client, msg, &data) {
			return
		}
		h.handleLockRequest(client, data.NotebookID, data.NoteID)

	case MessageTypeReleaseEditLock:
		var data LockRequestData
		if !h.decode(client, msg, &data) {
			return
		}
		h.handleLockRelease(client, data.NotebookID, data.NoteID)

	case MessageTypeNoteEditing:
		var data NoteEventData
		if !h.decode(client, msg, &data) {
			return
		}
		h.broadcastRoom(data.NotebookID, client.id, NewMessage(MessageTypeNoteEditing, NoteEditingData{
			NoteID:       data.NoteID,
			User:         client.identity,
			ConnectionID: client.id,
		}))

	case MessageTypeNoteCreated, MessageTypeNoteUpdated:
		var data NoteEventData
		if !h.decode(client, msg, &data) {
			return
		}
		h.broadcastRoom(data.NotebookID, client.id, &Message{
			Type:      msg.Type,
			Data:      data.Note,
			Timestamp: time.Now().Unix(),
		})

	case MessageTypeNoteDeleted:
		var data NoteEventData
		if !h.decode(client, msg, &data) {
			return
		}
		h.broadcastRoom(data.NotebookID, client.id, NewMessage(MessageTypeNoteDeleted, NoteDeletedData{
			NoteID: data.NoteID,
		}))

	case MessageTypeSendChat:
		var data ChatSendData
		if !h.decode(client, msg, &data) {
			return
		}
		h.handleChat(client, msg.ID, data)

	default:
		client.sendError("UNKNOWN_TYPE", "unknown event type: "+msg.Type.String())
	}
}

func (h *Hub) decode(client *Client, msg *Message, out any) bool {
	if err := json.Unmarshal(msg.Data, out); err != nil {
		h.logger.Debugw("invalid event payload", "connectionID", client.id, "type", msg.Type, "error", err)
		client.sendError("INVALID_PAYLOAD", "invalid payload for "+msg.Type.String())
		return false
	}
	return true
}

// handleJoin registers room membership and presence, tells the room about
// the newcomer and the newcomer about the room: who is there, which notes
// are locked, and the recent chat history.
func (h *Hub) handleJoin(client *Client, notebookID string) {
	if notebookID == "" {
		client.sendError("INVALID_PAYLOAD", "notebookId is required")
		return
	}

	h.mu.Lock()
	h.registry.JoinRoom(client.id, notebookID)
	roster, added := h.presence.Join(notebookID, client.id, client.identity)
	activeLocks := h.locks.Active(notebookID)
	h.mu.Unlock()

	if added {
		h.broadcastRoom(notebookID, client.id, NewMessage(MessageTypeUserJoined, UserJoinedData{
			ConnectionID: client.id,
			User:         client.identity,
			Timestamp:    time.Now().UTC(),
		}))
	}

	client.Send(NewMessage(MessageTypeRoomUsers, roster))

	if len(activeLocks) > 0 {
		client.Send(NewMessage(MessageTypeActiveLocks, activeLocks))
	}

	// History is fetched off the loop; the store may be slow and only the
	// joining client cares about the result.
	go h.sendHistory(client, notebookID)

	h.logger.Infow("client joined notebook", "connectionID", client.id, "notebookID", notebookID)
}

func (h *Hub) sendHistory(client *Client, notebookID string) {
	ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
	defer cancel()

	history, err := h.store.RecentChatMessages(ctx, notebookID, h.historyLimit)
	if err != nil {
		h.logger.Errorw("failed to fetch chat history", "notebookID", notebookID, "error", err)
		return
	}
	if len(history) == 0 {
		return
	}
	client.Send(NewMessage(MessageTypeChatHistory, history))
}

func (h *Hub) handleLeave(client *Client, notebookID string) {
	h.mu.Lock()
	h.registry.LeaveRoom(client.id, notebookID)
	removed := h.presence.Leave(notebookID, client.id)
	h.mu.Unlock()

	if removed {
		h.broadcastRoom(notebookID, client.id, NewMessage(MessageTypeUserLeft, UserLeftData{
			ConnectionID: client.id,
		}))
	}
}

func (h *Hub) handleLockRequest(client *Client, notebookID, noteID string) {
	h.mu.Lock()
	result, lock := h.locks.Request(notebookID, noteID, client.id, client.identity)
	h.mu.Unlock()

	switch result {
	case LockGranted:
		client.Send(NewMessage(MessageTypeLockGranted, LockGrantedData{NoteID: noteID}))
		h.broadcastRoom(notebookID, client.id, NewMessage(MessageTypeNoteLocked, LockInfo{
			NoteID: noteID,
			User:   client.identity,
		}))

	case LockAlreadyHeld:
		// Idempotent re-confirmation; the room already knows.
		client.Send(NewMessage(MessageTypeLockGranted, LockGrantedData{NoteID: noteID}))

	case LockDenied:
		client.Send(NewMessage(MessageTypeLockDenied, LockInfo{
			NoteID: noteID,
			User:   lock.Holder,
		}))
	}
}

func (h *Hub) handleLockRelease(client *Client, notebookID, noteID string) {
	h.mu.Lock()
	released := h.locks.Release(noteID, client.id)
	h.mu.Unlock()

	if released {
		h.broadcastRoom(notebookID, client.id, NewMessage(MessageTypeNoteUnlocked, NoteUnlockedData{
			NoteID: noteID,
		}))
	}
}

// handleChat broadcasts the chat line to the whole room, sender included,
// then persists it off the loop. The sender alone learns whether persistence
// succeeded; the room keeps what it already saw either way.
func (h *Hub) handleChat(client *Client, messageID string, data ChatSendData) {
	chatMsg := ChatMessageData{
		User:      client.identity,
		Text:      data.Text,
		Timestamp: time.Now().UTC(),
	}

	h.broadcastRoom(data.NotebookID, "", NewMessage(MessageTypeChatMessage, chatMsg))

	go h.persistChat(client, messageID, data)
}

func (h *Hub) persistChat(client *Client, messageID string, data ChatSendData) {
	ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
	defer cancel()

	if err := h.store.AppendChatMessage(ctx, data.NotebookID, client.identity, data.Text); err != nil {
		h.logger.Errorw("failed to persist chat message", "notebookID", data.NotebookID, "error", err)
		client.Send(NewMessage(MessageTypeChatAck, ChatAckData{
			ID:      messageID,
			Status:  ChatAckError,
			Message: "failed to send",
		}))
		return
	}

	client.Send(NewMessage(MessageTypeChatAck, ChatAckData{
		ID:     messageID,
		Status: ChatAckOK,
	}))
}

// handleDisconnect is the single teardown procedure for a connection: it
// removes the registry entry, leaves every room, releases every held lock,
// and emits every resulting notification before the cleanup is complete.
func (h *Hub) handleDisconnect(client *Client) {
	h.mu.Lock()
	current, ok := h.clients[client.id]
	if !ok || current != client {
		// Already torn down; queued disconnects can race the first one.
		h.mu.Unlock()
		return
	}
	delete(h.clients, client.id)

	rooms := h.registry.Remove(client.id)
	affected := make([]string, 0, len(rooms))
	for _, notebookID := range rooms {
		if h.presence.Leave(notebookID, client.id) {
			affected = append(affected, notebookID)
		}
	}
	released := h.locks.ReleaseAll(client.id)
	h.mu.Unlock()

	for _, notebookID := range affected {
		h.broadcastRoom(notebookID, client.id, NewMessage(MessageTypeUserLeft, UserLeftData{
			ConnectionID: client.id,
		}))
	}
	for _, lock := range released {
		h.broadcastRoom(lock.NotebookID, client.id, NewMessage(MessageTypeNoteUnlocked, NoteUnlockedData{
			NoteID: lock.NoteID,
		}))
	}

	client.close()

	h.logger.Infow("client disconnected", "connectionID", client.id,
		"rooms", len(affected), "locksReleased", len(released))
}

// broadcastRoom delivers a message to every member of the room except the
// excluded connection. Pass exclude "" to include everyone. Delivery is
// at-most-once: stalled members are dropped, not waited on.
func (h *Hub) broadcastRoom(notebookID, exclude string, msg *Message) {
	frame, err := json.Marshal(msg)
	if err != nil {
		h.logger.Errorw("failed to marshal broadcast", "type", msg.Type, "error", err)
		return
	}

	h.mu.RLock()
	members := h.registry.Members(notebookID)
	targets := make([]*Client, 0, len(members))
	for _, id := range members {
		if id == exclude {
			continue
		}
		if client, ok := h.clients[id]; ok {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range targets {
		client.enqueue(frame)
	}

	if h.relay != nil {
		if err := h.relay.Publish(h.ctx, notebookID, frame); err != nil {
			h.logger.Errorw("relay publish failed", "notebookID", notebookID, "error", err)
		}
	}
	if h.archiver != nil {
		go h.archiver.Archive(notebookID, frame)
	}
}

// deliverRemote hands a frame published by another instance to every local
// member of the room. The originating connection lives elsewhere, so no
// exclusion applies here.
func (h *Hub) deliverRemote(notebookID string, frame []byte) {
	h.mu.RLock()
	members := h.registry.Members(notebookID)
	targets := make([]*Client, 0, len(members))
	for _, id := range members {
		if client, ok := h.clients[id]; ok {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range targets {
		client.enqueue(frame)
	}
}
