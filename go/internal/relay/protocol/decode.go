package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Decode parses one framed client message into a Command. Every failure is a
// *DecodeError; Decode never panics on hostile input.
func Decode(raw []byte) (Command, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, decodeErrorf("empty message")
	}

	var envelope struct {
		Command *string `json:"command"`
		// Older clients used the Spanish key for the discriminator
		Comando *string `json:"comando"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, decodeErrorf("malformed message: %v", err)
	}

	var name string
	switch {
	case envelope.Command != nil:
		name = *envelope.Command
	case envelope.Comando != nil:
		name = *envelope.Comando
	default:
		return nil, decodeErrorf("missing command field")
	}

	switch name {
	case CommandHola:
		return decodeHola(trimmed)
	case CommandDeclareRole:
		return decodeDeclareRole(trimmed)
	case CommandSendGameState:
		return decodeSendGameState(trimmed)
	case CommandWatchPlayer:
		return decodeWatchPlayer(trimmed)
	default:
		return nil, decodeErrorf("unknown command %q", name)
	}
}

func decodeHola(data []byte) (Command, error) {
	var msg struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, decodeErrorf("hola: %v", err)
	}
	return Hola{Msg: msg.Msg}, nil
}

func decodeDeclareRole(data []byte) (Command, error) {
	var msg struct {
		TipoCliente *string `json:"tipoCliente"`
		PlayerName  string  `json:"playerName"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, decodeErrorf("tipoCliente: %v", err)
	}
	if msg.TipoCliente == nil {
		return nil, decodeErrorf("tipoCliente: field tipoCliente is required")
	}

	switch *msg.TipoCliente {
	case RolePlayer, RoleSpectator:
	default:
		return nil, decodeErrorf("tipoCliente: unknown client type %q", *msg.TipoCliente)
	}

	return DeclareRole{
		Role:       *msg.TipoCliente,
		PlayerName: strings.TrimSpace(msg.PlayerName),
	}, nil
}

func decodeSendGameState(data []byte) (Command, error) {
	var msg struct {
		Player *struct {
			PositionX *float64 `json:"positionX"`
			PositionY *float64 `json:"positionY"`
			SizeX     *float64 `json:"sizeX"`
			SizeY     *float64 `json:"sizeY"`
			Life      *float64 `json:"life"`
			Score     *float64 `json:"score"`
		} `json:"player"`
		Balls *[]struct {
			Active    *bool    `json:"active"`
			PositionX *float64 `json:"positionX"`
			PositionY *float64 `json:"positionY"`
		} `json:"balls"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, decodeErrorf("sendGameState: %v", err)
	}
	if msg.Player == nil {
		return nil, decodeErrorf("sendGameState: field player is required")
	}
	if msg.Balls == nil {
		return nil, decodeErrorf("sendGameState: field balls is required")
	}

	p := msg.Player
	fields := []struct {
		name  string
		value *float64
	}{
		{"positionX", p.PositionX},
		{"positionY", p.PositionY},
		{"sizeX", p.SizeX},
		{"sizeY", p.SizeY},
		{"life", p.Life},
		{"score", p.Score},
	}
	for _, f := range fields {
		if f.value == nil {
			return nil, decodeErrorf("sendGameState: field player.%s is required", f.name)
		}
	}

	balls := make([]Ball, 0, len(*msg.Balls))
	for i, b := range *msg.Balls {
		if b.Active == nil || b.PositionX == nil || b.PositionY == nil {
			return nil, decodeErrorf("sendGameState: balls[%d] needs active, positionX and positionY", i)
		}
		balls = append(balls, Ball{
			Active:    *b.Active,
			PositionX: *b.PositionX,
			PositionY: *b.PositionY,
		})
	}

	return SendGameState{
		Player: PlayerSnapshot{
			PositionX: *p.PositionX,
			PositionY: *p.PositionY,
			SizeX:     *p.SizeX,
			SizeY:     *p.SizeY,
			Life:      *p.Life,
			Score:     *p.Score,
		},
		Balls: balls,
		// Framing buffers are reused, keep our own copy
		Raw: append(json.RawMessage(nil), data...),
	}, nil
}

func decodeWatchPlayer(data []byte) (Command, error) {
	var msg struct {
		JugadorID json.RawMessage `json:"jugadorId"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, decodeErrorf("GameSpectator: %v", err)
	}
	if len(msg.JugadorID) == 0 || string(msg.JugadorID) == "null" {
		return nil, decodeErrorf("GameSpectator: field jugadorId is required")
	}

	id, err := playerIDFromJSON(msg.JugadorID)
	if err != nil {
		return nil, decodeErrorf("GameSpectator: %v", err)
	}
	return WatchPlayer{PlayerID: id}, nil
}

// playerIDFromJSON accepts a string or a number; typed clients send the id
// they were handed back as a number.
func playerIDFromJSON(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			return "", fmt.Errorf("jugadorId must not be empty")
		}
		return s, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("jugadorId must be a string")
}
