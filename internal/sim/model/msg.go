package model

// Msg types exchanged between broker and trucks. Each rides in Msg.Type with
// the fields listed in the wire tables under schemas/.
const (
	MsgProposal            = "proposal"
	MsgAccept              = "accept"
	MsgReject              = "reject"
	MsgAssignmentConfirmed = "assignment_confirmed"
	MsgPickupConfirmed     = "pickup_confirmed"
	MsgDeliveryConfirmed   = "delivery_confirmed"
)

// Msg is one unit of inter-agent traffic. A Msg is immutable once appended to
// an outbox; routing moves it by value into the recipient's inbox, so no two
// agents ever alias the same payload map across ticks. Senders must not retain
// or mutate Payload after appending.
type Msg struct {
	Type      string
	Sender    AgentID
	Recipient AgentID
	Payload   map[string]any
}

// NewMsg builds a message with its own payload map.
func NewMsg(typ string, from, to AgentID, payload map[string]any) Msg {
	if payload == nil {
		payload = map[string]any{}
	}
	return Msg{Type: typ, Sender: from, Recipient: to, Payload: payload}
}

// Payload accessors. Numeric payload values arrive either as native Go numbers
// (sim-internal messages) or as float64 (messages that crossed JSON). Accessors
// normalize both so behaviors never switch on wire history.

func PayloadString(p map[string]any, key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func PayloadUint(p map[string]any, key string) (uint64, bool) {
	v, ok := p[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case uint64:
		return n, true
	case int:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case float64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	}
	return 0, false
}

func PayloadFloat(p map[string]any, key string) (float64, bool) {
	v, ok := p[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func PayloadBool(p map[string]any, key string) (bool, bool) {
	v, ok := p[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}
