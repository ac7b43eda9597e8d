package protocol

import "encoding/json"

// Command names as they appear in the "command" discriminator field
const (
	CommandHola          = "hola"
	CommandDeclareRole   = "tipoCliente"
	CommandSendGameState = "sendGameState"
	CommandWatchPlayer   = "GameSpectator"

	CommandResponse    = "response"
	CommandPlayerList  = "ClientesLista"
	CommandBrickUpdate = "brickUpdate"
)

// Role values accepted by tipoCliente
const (
	RolePlayer    = "player"
	RoleSpectator = "spectador"
)

// Command is one decoded client message. The set of implementations is closed:
// Hola, DeclareRole, SendGameState and WatchPlayer.
type Command interface {
	Name() string
}

// Hola is the liveness ping used by generic clients
type Hola struct {
	Msg string
}

// DeclareRole commits a session to a role
type DeclareRole struct {
	Role       string
	PlayerName string
}

// SendGameState carries a player's latest state. Raw is the message exactly as
// received and is what spectators get.
type SendGameState struct {
	Player PlayerSnapshot
	Balls  []Ball
	Raw    json.RawMessage
}

// WatchPlayer points a spectator at a player
type WatchPlayer struct {
	PlayerID string
}

func (Hola) Name() string          { return CommandHola }
func (DeclareRole) Name() string   { return CommandDeclareRole }
func (SendGameState) Name() string { return CommandSendGameState }
func (WatchPlayer) Name() string   { return CommandWatchPlayer }

// PlayerSnapshot is the paddle portion of a game state
type PlayerSnapshot struct {
	PositionX float64 `json:"positionX"`
	PositionY float64 `json:"positionY"`
	SizeX     float64 `json:"sizeX"`
	SizeY     float64 `json:"sizeY"`
	Life      float64 `json:"life"`
	Score     float64 `json:"score"`
}

// Ball is one ball of a game state
type Ball struct {
	Active    bool    `json:"active"`
	PositionX float64 `json:"positionX"`
	PositionY float64 `json:"positionY"`
}

// Response is the generic acknowledgment/error message
type Response struct {
	Command  string `json:"command"`
	Message  string `json:"message"`
	PlayerID string `json:"jugadorId,omitempty"`
}

// PlayerListEntry is one row of the discovery reply
type PlayerListEntry struct {
	ID   string `json:"id"`
	Name string `json:"nombre"`
}

// PlayerList answers a spectator's role declaration with the players it can watch
type PlayerList struct {
	Command string            `json:"command"`
	Data    []PlayerListEntry `json:"data"`
}

// BrickUpdate tells a player client to apply a power to one of its bricks
type BrickUpdate struct {
	Command string `json:"command"`
	Row     int    `json:"row"`
	Column  int    `json:"column"`
	Power   string `json:"power"`
}

// Powers that may be sent to a player with a BrickUpdate
var Powers = []string{
	"ADD_LIFE",
	"ADD_BALL",
	"DOUBLE_RACKET",
	"HALF_RACKET",
	"SPEED_UP",
	"SPEED_DOWN",
	"UPDATE_POINTS",
}

// IsPower reports whether name is one of Powers
func IsPower(name string) bool {
	for _, p := range Powers {
		if p == name {
			return true
		}
	}
	return false
}
