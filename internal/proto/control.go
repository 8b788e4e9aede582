// Package proto defines the control protocol exchanged between relay nodes
// and the transport frames that carry it.
package proto

import "fmt"

// MessageType is the closed set of control message kinds.
type MessageType int32

const (
	DisplayMessage MessageType = iota
	AddWhitelistPeer
	AddWhitelistSender
	PublishAlias
	NetworkSolicitation
	State
	RequestMessage
	StoreMessage
	Upgrade
	RequestUpgrade
	NetworkBinaryVersion
	PeerConnected
	PeerDisconnected

	numMessageTypes
)

var messageTypeNames = [...]string{
	DisplayMessage:       "DisplayMessage",
	AddWhitelistPeer:     "AddWhitelistPeer",
	AddWhitelistSender:   "AddWhitelistSender",
	PublishAlias:         "PublishAlias",
	NetworkSolicitation:  "NetworkSolicitation",
	State:                "State",
	RequestMessage:       "RequestMessage",
	StoreMessage:         "StoreMessage",
	Upgrade:              "Upgrade",
	RequestUpgrade:       "RequestUpgrade",
	NetworkBinaryVersion: "NetworkBinaryVersion",
	PeerConnected:        "PeerConnected",
	PeerDisconnected:     "PeerDisconnected",
}

func (t MessageType) Valid() bool {
	return t >= 0 && t < numMessageTypes
}

func (t MessageType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("MessageType(%d)", int32(t))
	}
	return messageTypeNames[t]
}

// ControlMessage is the unit of the control protocol. State is only set on
// State messages and Stored only on StoreMessage hand-offs.
type ControlMessage struct {
	Type    MessageType
	Payload string
	State   *NetworkState
	Stored  *StoredMessage
}

// NetworkState is the local view shared in reply to a NetworkSolicitation.
type NetworkState struct {
	Whitelisted       []string
	Connected         []string
	AuthorizedSenders []string
	Aliases           []Alias
}

type Alias struct {
	Peer  string
	Alias string
}

// StoredMessage is a mailbox entry stored on behalf of Owner. Broadcast marks
// the ownerless broadcast fallback.
type StoredMessage struct {
	Owner     string
	Payload   string
	Broadcast bool
}

func New(t MessageType, payload string) *ControlMessage {
	return &ControlMessage{Type: t, Payload: payload}
}
