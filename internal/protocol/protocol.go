package protocol

import "encoding/json"

const Version = "1.0"

// Frame types.
const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
	TypeAction  = "ACTION"
	TypeAck     = "ACK"
	TypeSignal  = "SIGNAL"
)

// BaseFrame lets us route unknown JSON frames by type.
type BaseFrame struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseFrame, error) {
	var f BaseFrame
	err := json.Unmarshal(b, &f)
	return f, err
}
