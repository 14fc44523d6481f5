package collab

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies a WebSocket event using a custom enum type for better type safety
type MessageType string

// WebSocket event types, matching the wire names the notebook frontend speaks
const (
	// Inbound client events
	MessageTypeJoinNotebook    MessageType = "join-notebook"
	MessageTypeLeaveNotebook   MessageType = "leave-notebook"
	MessageTypeRequestEditLock MessageType = "request-edit-lock"
	MessageTypeReleaseEditLock MessageType = "release-edit-lock"
	MessageTypeNoteEditing     MessageType = "note-editing"
	MessageTypeNoteCreated     MessageType = "note-created"
	MessageTypeNoteUpdated     MessageType = "note-updated"
	MessageTypeNoteDeleted     MessageType = "note-deleted"
	MessageTypeSendChat        MessageType = "send-chat-message"

	// Outbound notifications
	MessageTypeRoomUsers    MessageType = "room-users"
	MessageTypeUserJoined   MessageType = "user-joined"
	MessageTypeUserLeft     MessageType = "user-left"
	MessageTypeActiveLocks  MessageType = "active-locks"
	MessageTypeLockGranted  MessageType = "lock-granted"
	MessageTypeLockDenied   MessageType = "lock-denied"
	MessageTypeNoteLocked   MessageType = "note-locked"
	MessageTypeNoteUnlocked MessageType = "note-unlocked"
	MessageTypeChatMessage  MessageType = "chat-message"
	MessageTypeChatHistory  MessageType = "notebook-chat-history"
	MessageTypeChatAck      MessageType = "chat-ack"
	MessageTypeError        MessageType = "error"
)

// String returns the string representation of the MessageType
func (mt MessageType) String() string {
	return string(mt)
}

// IsClientEvent reports whether the type is one a client is allowed to send
func (mt MessageType) IsClientEvent() bool {
	switch mt {
	case MessageTypeJoinNotebook, MessageTypeLeaveNotebook,
		MessageTypeRequestEditLock, MessageTypeReleaseEditLock,
		MessageTypeNoteEditing, MessageTypeNoteCreated,
		MessageTypeNoteUpdated, MessageTypeNoteDeleted,
		MessageTypeSendChat:
		return true
	default:
		return false
	}
}

// Identity is the user reference attached to a connection. It is supplied by
// the client at connect time and trusted as-is; credential verification is the
// auth service's job.
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AnonymousIdentity is the synthetic identity assigned to unauthenticated clients.
func AnonymousIdentity() Identity {
	return Identity{ID: "anon", Name: "Anonymous"}
}

// Message is the envelope for every frame in both directions
type Message struct {
	ID        string          `json:"id,omitempty"`
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

// Validate validates the envelope of an inbound frame
func (m *Message) Validate() error {
	if m.Type == "" {
		return fmt.Errorf("message type is required")
	}
	if !m.Type.IsClientEvent() {
		return fmt.Errorf("unsupported client event: %s", m.Type)
	}
	return nil
}

// Inbound payloads

type JoinNotebookData struct {
	NotebookID string `json:"notebookId"`
}

type LeaveNotebookData struct {
	NotebookID string `json:"notebookId"`
}

type LockRequestData struct {
	NotebookID string `json:"notebookId"`
	NoteID     string `json:"noteId"`
}

type NoteEventData struct {
	NotebookID string          `json:"notebookId"`
	NoteID     string          `json:"noteId,omitempty"`
	Note       json.RawMessage `json:"note,omitempty"`
}

type ChatSendData struct {
	NotebookID string `json:"notebookId"`
	Text       string `json:"text"`
}

// Outbound payloads

// PresenceEntry is one member of a room as shown to other members.
type PresenceEntry struct {
	ConnectionID string   `json:"connectionId"`
	User         Identity `json:"user"`
}

type UserJoinedData struct {
	ConnectionID string    `json:"connectionId"`
	User         Identity  `json:"user"`
	Timestamp    time.Time `json:"timestamp"`
}

type UserLeftData struct {
	ConnectionID string `json:"connectionId"`
}

// LockInfo pairs a note with the identity holding its lock.
type LockInfo struct {
	NoteID string   `json:"noteId"`
	User   Identity `json:"user"`
}

type LockGrantedData struct {
	NoteID string `json:"noteId"`
}

type NoteUnlockedData struct {
	NoteID string `json:"noteId"`
}

type NoteDeletedData struct {
	NoteID string `json:"noteId"`
}

type NoteEditingData struct {
	NoteID       string          `json:"noteId"`
	User         Identity        `json:"user"`
	ConnectionID string          `json:"connectionId"`
	Note         json.RawMessage `json:"note,omitempty"`
}

// ChatMessageData is a chat line as delivered to room members.
type ChatMessageData struct {
	User      Identity  `json:"user"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Chat acknowledgment statuses reported back to the sender only.
const (
	ChatAckOK    = "ok"
	ChatAckError = "error"
)

type ChatAckData struct {
	ID      string `json:"id,omitempty"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewMessage creates an outbound message with the payload marshaled in place.
// Payloads are plain DTOs defined in this package, so marshaling cannot fail.
func NewMessage(msgType MessageType, payload any) *Message {
	var data json.RawMessage
	if payload != nil {
		data, _ = json.Marshal(payload)
	}
	return &Message{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
}

// NewErrorMessage creates an error notification for a single client
func NewErrorMessage(code, message string) *Message {
	return NewMessage(MessageTypeError, ErrorData{Code: code, Message: message})
}
