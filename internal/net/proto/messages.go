// Package proto defines the JSON messages exchanged with websocket
// observers.
package proto

import (
	"encoding/json"
	"fmt"

	"hunt-arena/server/internal/match"
)

const (
	// Version tracks the wire-protocol revision expected by clients.
	Version = 1

	typeState         = "state"
	typeCommandAck    = "commandAck"
	typeCommandReject = "commandReject"
	typeHeartbeat     = "heartbeat"
)

// Client message type identifiers.
const (
	TypeCommand   = "command"
	TypeHeartbeat = "heartbeat"
)

// Exported aliases for outbound message type identifiers.
const (
	TypeState         = typeState
	TypeCommandAck    = typeCommandAck
	TypeCommandReject = typeCommandReject
)

// ClientMessage is any message an observer sends.
type ClientMessage struct {
	Ver     int            `json:"ver,omitempty"`
	Type    string         `json:"type"`
	Seq     uint64         `json:"seq,omitempty"`
	SentAt  int64          `json:"sentAt,omitempty"`
	Command *match.Command `json:"command,omitempty"`
}

// StateMessage carries a match snapshot.
type StateMessage struct {
	Ver   int            `json:"ver"`
	Type  string         `json:"type"`
	State match.Snapshot `json:"state"`
}

// CommandAck confirms a staged command.
type CommandAck struct {
	Ver  int    `json:"ver"`
	Type string `json:"type"`
	Seq  uint64 `json:"seq"`
	Tick uint64 `json:"tick,omitempty"`
}

// CommandReject reports a refused command. Retry is set when the refusal
// was due to throttling.
type CommandReject struct {
	Ver    int    `json:"ver"`
	Type   string `json:"type"`
	Seq    uint64 `json:"seq"`
	Reason string `json:"reason"`
	Retry  bool   `json:"retry,omitempty"`
}

// Heartbeat answers a client heartbeat.
type Heartbeat struct {
	Ver        int    `json:"ver"`
	Type       string `json:"type"`
	ServerTime int64  `json:"serverTime"`
	ClientTime int64  `json:"clientTime"`
}

// DecodeClientMessage parses an observer message.
func DecodeClientMessage(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("decode client message: %w", err)
	}
	if msg.Type == "" {
		return ClientMessage{}, fmt.Errorf("decode client message: missing type")
	}
	return msg, nil
}

// EncodeState renders a state message for snapshot.
func EncodeState(snapshot match.Snapshot) ([]byte, error) {
	return json.Marshal(StateMessage{Ver: Version, Type: typeState, State: snapshot})
}

// NewCommandAck builds an acknowledgement for seq.
func NewCommandAck(seq, tick uint64) CommandAck {
	return CommandAck{Ver: Version, Type: typeCommandAck, Seq: seq, Tick: tick}
}

// NewCommandReject builds a rejection for seq.
func NewCommandReject(seq uint64, reason string) CommandReject {
	return CommandReject{
		Ver:    Version,
		Type:   typeCommandReject,
		Seq:    seq,
		Reason: reason,
		Retry:  reason == match.CommandRejectQueueLimit || reason == match.CommandRejectQueueFull,
	}
}

// NewHeartbeat builds a heartbeat reply.
func NewHeartbeat(serverTime, clientTime int64) Heartbeat {
	return Heartbeat{Ver: Version, Type: typeHeartbeat, ServerTime: serverTime, ClientTime: clientTime}
}
