package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	helloSchema := compile("hello.schema.json")
	welcomeSchema := compile("welcome.schema.json")
	actionSchema := compile("action.schema.json")
	ackSchema := compile("ack.schema.json")
	signalSchema := compile("signal.schema.json")

	var hello any
	_ = json.Unmarshal([]byte(`{
	  "type":"HELLO",
	  "protocol_version":"1.0",
	  "client_name":"bot1",
	  "subscribe":true
	}`), &hello)
	validate(helloSchema, hello)

	var welcome any
	_ = json.Unmarshal([]byte(`{
	  "type":"WELCOME",
	  "protocol_version":"1.0",
	  "session_id":"4f8e2f1a-2b3c-4d5e-8f90-0a1b2c3d4e5f",
	  "tick":42,
	  "sim_running":true,
	  "world_params":{
	    "tick_rate_hz":10,
	    "node_count":12,
	    "edge_count":34,
	    "agent_count":7,
	    "map_name":"demo"
	  }
	}`), &welcome)
	validate(welcomeSchema, welcome)

	var action any
	_ = json.Unmarshal([]byte(`{
	  "type":"ACTION",
	  "protocol_version":"1.0",
	  "kind":"agent.describe",
	  "correlation_id":"c-1",
	  "payload":{"agent_id":"truck-001"}
	}`), &action)
	validate(actionSchema, action)

	var spawn any
	_ = json.Unmarshal([]byte(`{
	  "type":"ACTION",
	  "protocol_version":"1.0",
	  "kind":"package.spawn",
	  "correlation_id":"c-2",
	  "payload":{
	    "origin_site_id":"site-001",
	    "destination_site_id":"site-002",
	    "size":2,
	    "value":120.5,
	    "pickup_after":50,
	    "delivery_after":200
	  }
	}`), &spawn)
	validate(actionSchema, spawn)

	var ack any
	_ = json.Unmarshal([]byte(`{
	  "type":"ACK",
	  "protocol_version":"1.0",
	  "ack_for":"c-2",
	  "accepted":false,
	  "code":"E_QUEUE_FULL",
	  "message":"action queue full",
	  "server_tick":42
	}`), &ack)
	validate(ackSchema, ack)

	var signal any
	_ = json.Unmarshal([]byte(`{
	  "type":"SIGNAL",
	  "protocol_version":"1.0",
	  "kind":"agent.listed",
	  "correlation_id":"c-3",
	  "tick":43,
	  "payload":{"ids":["truck-001","truck-002"],"count":2}
	}`), &signal)
	validate(signalSchema, signal)

	var errSignal any
	_ = json.Unmarshal([]byte(`{
	  "type":"SIGNAL",
	  "protocol_version":"1.0",
	  "kind":"error",
	  "correlation_id":"c-4",
	  "tick":43,
	  "payload":{"error":"GENERIC_ERROR","code":"E_NOT_FOUND","message":"agent truck-099 not found"}
	}`), &errSignal)
	validate(signalSchema, errSignal)
}

func TestSchemas_RejectBadFrames(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	actionSchema := compile("action.schema.json")
	signalSchema := compile("signal.schema.json")

	var unknownKind any
	_ = json.Unmarshal([]byte(`{
	  "type":"ACTION",
	  "protocol_version":"1.0",
	  "kind":"agent.obliterate"
	}`), &unknownKind)
	if err := actionSchema.Validate(unknownKind); err == nil {
		t.Fatalf("expected unknown action kind rejected")
	}

	var missingTick any
	_ = json.Unmarshal([]byte(`{
	  "type":"SIGNAL",
	  "protocol_version":"1.0",
	  "kind":"tick.completed"
	}`), &missingTick)
	if err := signalSchema.Validate(missingTick); err == nil {
		t.Fatalf("expected signal without tick rejected")
	}
}
