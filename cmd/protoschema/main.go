// protoschema emits a JSON schema for the websocket wire protocol so the
// browser client can validate frames and generate typed bindings.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"triad-arena/server/internal/proto"
)

// frames lists every message that crosses the wire, both directions.
var frames = map[string]any{
	// Client → server.
	proto.TypeHello:         proto.Hello{},
	proto.TypePing:          proto.Ping{},
	proto.TypeJoinLobby:     proto.JoinLobby{},
	proto.TypeRequestRefund: proto.RequestRefund{},
	proto.TypeInput:         proto.Input{},

	// Server → client.
	proto.TypeWelcome:          proto.Welcome{},
	proto.TypeError:            proto.Error{},
	proto.TypePong:             proto.Pong{},
	proto.TypeTokenUpdate:      proto.TokenUpdate{},
	proto.TypeLobbyList:        proto.LobbyList{},
	proto.TypeLobbyUpdate:      proto.LobbyUpdate{},
	proto.TypeLobbyCountdown:   proto.LobbyCountdown{},
	proto.TypeMatchStarting:    proto.MatchStarting{},
	proto.TypeRoleAssignment:   proto.RoleAssignment{},
	proto.TypeCountdown:        proto.Countdown{},
	proto.TypeSnapshot:         proto.Snapshot{},
	proto.TypeElimination:      proto.Elimination{},
	proto.TypeBounce:           proto.Bounce{},
	proto.TypeShowdownStart:    proto.ShowdownStart{},
	proto.TypeShowdownReady:    proto.ShowdownReady{},
	proto.TypeHeartCaptured:    proto.HeartCaptured{},
	proto.TypeMatchEnd:         proto.MatchEnd{},
	proto.TypeRefundProcessed:  proto.RefundProcessed{},
	proto.TypePlayerDisconnect: proto.PlayerDisconnect{},
	proto.TypePlayerReconnect:  proto.PlayerReconnect{},
	proto.TypeReconnectState:   proto.ReconnectState{},
}

func main() {
	var outPath string
	flag.StringVar(&outPath, "out", "", "path to write the JSON schema")
	flag.Parse()

	if outPath == "" {
		fmt.Fprintln(os.Stderr, "--out is required")
		os.Exit(1)
	}

	if err := writeSchema(outPath, buildSchema()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write schema: %v\n", err)
		os.Exit(1)
	}
}

func buildSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}

	root := &jsonschema.Schema{
		Title:       "Triad Arena Wire Protocol",
		Description: "Type-tagged JSON frames exchanged over the websocket session",
		Definitions: make(map[string]*jsonschema.Schema),
	}
	for tag, msg := range frames {
		schema := reflector.Reflect(msg)
		schema.Version = ""
		root.Definitions[tag] = schema
	}
	return root
}

func writeSchema(outPath string, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}

	return nil
}
