// Package relay mirrors dispatched events to display clients over WebSocket.
package relay

// MessageType identifies the kind of relay message.
type MessageType string

const (
	MsgTypeDirection MessageType = "direction"
	MsgTypeCaption   MessageType = "caption"
	MsgTypeStatus    MessageType = "status"
)

// Link status values carried by MsgTypeStatus.
const (
	StatusConnected = "connected"
	StatusError     = "error"
	StatusClosed    = "closed"
)

// Message is the JSON structure pushed to every WebSocket client.
type Message struct {
	Seq       uint32      `json:"seq"`
	Type      MessageType `json:"type"`
	Direction string      `json:"direction,omitempty"`
	Code      int         `json:"code,omitempty"`
	Text      string      `json:"text,omitempty"`
	Status    string      `json:"status,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	Timestamp int64       `json:"timestamp"` // unix milliseconds
}
