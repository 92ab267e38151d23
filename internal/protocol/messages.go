package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
	Subscribe       bool   `json:"subscribe,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	Tick            uint64      `json:"tick"`
	SimRunning      bool        `json:"sim_running"`
	WorldParams     WorldParams `json:"world_params"`
}

type WorldParams struct {
	TickRateHz int    `json:"tick_rate_hz"`
	NodeCount  int    `json:"node_count"`
	EdgeCount  int    `json:"edge_count"`
	AgentCount int    `json:"agent_count"`
	MapName    string `json:"map_name,omitempty"`
}

// ACTION (client -> server): one control-plane action.
type ActionMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	Kind            string         `json:"kind"`
	CorrelationID   string         `json:"correlation_id,omitempty"`
	Payload         map[string]any `json:"payload,omitempty"`
}

// ACK (server -> client): immediate accept/reject of an ACTION frame. The
// action's real outcome arrives later as a SIGNAL carrying the same
// correlation id.
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	ServerTick      uint64 `json:"server_tick,omitempty"`
}

// SIGNAL (server -> client): one world-originated signal.
type SignalMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	Kind            string         `json:"kind"`
	CorrelationID   string         `json:"correlation_id,omitempty"`
	Tick            uint64         `json:"tick"`
	Payload         map[string]any `json:"payload,omitempty"`
}
