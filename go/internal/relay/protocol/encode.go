package protocol

import "encoding/json"

// NewResponse builds a generic acknowledgment
func NewResponse(message string) Response {
	return Response{Command: CommandResponse, Message: message}
}

// NewPlayerList builds the discovery reply sent to spectators
func NewPlayerList(entries []PlayerListEntry) PlayerList {
	if entries == nil {
		entries = []PlayerListEntry{}
	}
	return PlayerList{Command: CommandPlayerList, Data: entries}
}

// NewBrickUpdate builds the power message delivered to a player
func NewBrickUpdate(power string, row, column int) BrickUpdate {
	return BrickUpdate{
		Command: CommandBrickUpdate,
		Row:     row,
		Column:  column,
		Power:   power,
	}
}

// Marshal encodes an outbound message. Framing is left to the transport.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}
