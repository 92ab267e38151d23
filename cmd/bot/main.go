// Command bot is a control-plane exerciser: it connects to a running server,
// subscribes to signals, and keeps the broker busy by spawning packages
// between the scenario's sites.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"freightcraft.ai/internal/control"
	"freightcraft.ai/internal/protocol"
)

func main() {
	var (
		url        = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name       = flag.String("name", "bot", "client name")
		spawnEvery = flag.Uint64("spawn_every", 120, "ticks between package spawns (0 disables)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
		Subscribe:       true,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var sites []string
	var lastSpawn uint64

	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME session=%s tick=%d agents=%d running=%v",
				w.SessionID, w.Tick, w.WorldParams.AgentCount, w.SimRunning)
			sendAction(conn, control.ActionAgentList, map[string]any{"filter": "site"})

		case protocol.TypeSignal:
			var sig protocol.SignalMsg
			if err := json.Unmarshal(msg, &sig); err != nil {
				continue
			}
			switch sig.Kind {
			case control.SignalAgentListed:
				sites = sites[:0]
				if ids, ok := sig.Payload["ids"].([]any); ok {
					for _, raw := range ids {
						if id, ok := raw.(string); ok {
							sites = append(sites, id)
						}
					}
				}
				logger.Printf("discovered %d sites", len(sites))

			case control.SignalTickCompleted:
				tick := sig.Tick
				if *spawnEvery > 0 && len(sites) >= 2 && tick >= lastSpawn+*spawnEvery {
					lastSpawn = tick
					i := rng.Intn(len(sites))
					j := rng.Intn(len(sites) - 1)
					if j >= i {
						j++
					}
					sendAction(conn, control.ActionPackageSpawn, map[string]any{
						"origin_site_id":      sites[i],
						"destination_site_id": sites[j],
						"size":                1 + rng.Intn(3),
						"value":               float64(50 + rng.Intn(200)),
						"pickup_after":        uint64(150),
						"delivery_after":      uint64(600),
					})
				}

			case control.SignalPackageSpawned:
				logger.Printf("spawned %v %v -> %v", sig.Payload["package_id"],
					sig.Payload["origin_site_id"], sig.Payload["destination_site_id"])

			case control.SignalError:
				logger.Printf("error signal: %v", sig.Payload)
			}

		case protocol.TypeAck:
			var ack protocol.AckMsg
			if err := json.Unmarshal(msg, &ack); err != nil {
				continue
			}
			if !ack.Accepted {
				logger.Printf("ACK rejected %s: %s %s", ack.AckFor, ack.Code, ack.Message)
			}
		}
	}
}

func sendAction(conn *websocket.Conn, kind string, payload map[string]any) {
	act := protocol.ActionMsg{
		Type:            protocol.TypeAction,
		ProtocolVersion: protocol.Version,
		Kind:            kind,
		CorrelationID:   uuid.NewString(),
		Payload:         payload,
	}
	_ = conn.WriteJSON(act)
}
