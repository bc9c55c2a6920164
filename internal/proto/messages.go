// Package proto defines the duplex JSON wire protocol. Every frame is a
// type-tagged text message; the session layer picks a handler from the tag.
package proto

// Inbound type tags (client → server).
const (
	TypeHello         = "HELLO"
	TypePing          = "PING"
	TypeJoinLobby     = "JOIN_LOBBY"
	TypeRequestRefund = "REQUEST_REFUND"
	TypeInput         = "INPUT"
)

// Outbound type tags (server → client).
const (
	TypeWelcome          = "WELCOME"
	TypeError            = "ERROR"
	TypePong             = "PONG"
	TypeTokenUpdate      = "TOKEN_UPDATE"
	TypeLobbyList        = "LOBBY_LIST"
	TypeLobbyUpdate      = "LOBBY_UPDATE"
	TypeLobbyCountdown   = "LOBBY_COUNTDOWN"
	TypeMatchStarting    = "MATCH_STARTING"
	TypeRoleAssignment   = "ROLE_ASSIGNMENT"
	TypeCountdown        = "COUNTDOWN"
	TypeSnapshot         = "SNAPSHOT"
	TypeElimination      = "ELIMINATION"
	TypeBounce           = "BOUNCE"
	TypeShowdownStart    = "SHOWDOWN_START"
	TypeShowdownReady    = "SHOWDOWN_READY"
	TypeHeartCaptured    = "HEART_CAPTURED"
	TypeMatchEnd         = "MATCH_END"
	TypeRefundProcessed  = "REFUND_PROCESSED"
	TypePlayerDisconnect = "PLAYER_DISCONNECT"
	TypePlayerReconnect  = "PLAYER_RECONNECT"
	TypeReconnectState   = "RECONNECT_STATE"
)

// Hello must be the first frame on a fresh connection.
type Hello struct {
	Type         string `json:"type"`
	SessionToken string `json:"sessionToken"`
}

type Ping struct {
	Type       string `json:"type"`
	ClientTime int64  `json:"clientTime"`
}

type JoinLobby struct {
	Type          string `json:"type"`
	LobbyID       int    `json:"lobbyId"`
	PaymentTxHash string `json:"paymentTxHash"`
}

type RequestRefund struct {
	Type    string `json:"type"`
	LobbyID int    `json:"lobbyId"`
}

// Input carries integer directional intent. Sequence is strictly monotonic
// per session; stale sequences are dropped by the match runner.
type Input struct {
	Type     string `json:"type"`
	DirX     int    `json:"dirX"`
	DirY     int    `json:"dirY"`
	Sequence uint64 `json:"sequence"`
	Frozen   bool   `json:"frozen,omitempty"`
}

type Welcome struct {
	Type       string `json:"type"`
	UserID     string `json:"userId"`
	ServerTime int64  `json:"serverTime"`
}

type Error struct {
	Type    string `json:"type"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type Pong struct {
	Type       string `json:"type"`
	ClientTime int64  `json:"clientTime"`
	ServerTime int64  `json:"serverTime"`
}

type TokenUpdate struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type LobbySummary struct {
	ID             int    `json:"id"`
	Status         string `json:"status"`
	PlayerCount    int    `json:"playerCount"`
	DepositAddress string `json:"depositAddress"`
}

type LobbyList struct {
	Type    string         `json:"type"`
	Lobbies []LobbySummary `json:"lobbies"`
}

type LobbyPlayer struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Paid        bool   `json:"paid"`
	Connected   bool   `json:"connected"`
}

type LobbyUpdate struct {
	Type           string        `json:"type"`
	LobbyID        int           `json:"lobbyId"`
	Players        []LobbyPlayer `json:"players"`
	Status         string        `json:"status"`
	TimeRemaining  *int          `json:"timeRemaining,omitempty"`
	DepositAddress string        `json:"depositAddress"`
}

type LobbyCountdown struct {
	Type             string `json:"type"`
	LobbyID          int    `json:"lobbyId"`
	SecondsRemaining int    `json:"secondsRemaining"`
}

type MatchStarting struct {
	Type      string `json:"type"`
	Countdown int    `json:"countdown"`
}

type RoleAssignment struct {
	Type   string  `json:"type"`
	Role   string  `json:"role"`
	SpawnX float64 `json:"spawnX"`
	SpawnY float64 `json:"spawnY"`
}

type Countdown struct {
	Type             string `json:"type"`
	SecondsRemaining int    `json:"secondsRemaining"`
}

type SnapshotPlayer struct {
	ID        string  `json:"id"`
	Role      string  `json:"role"`
	Alive     bool    `json:"alive"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Connected bool    `json:"connected"`
}

type SnapshotHeart struct {
	ID       int     `json:"id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Captured bool    `json:"captured"`
}

// Snapshot is always the final message of a broadcast tick.
type Snapshot struct {
	Type    string           `json:"type"`
	Tick    uint64           `json:"tick"`
	Players []SnapshotPlayer `json:"players"`
	Hearts  []SnapshotHeart  `json:"hearts,omitempty"`
	Scores  map[string]int   `json:"scores,omitempty"`
}

type Elimination struct {
	Type         string `json:"type"`
	EliminatedID string `json:"eliminatedId"`
	WinnerID     string `json:"winnerId,omitempty"`
}

type Bounce struct {
	Type      string `json:"type"`
	Player1ID string `json:"player1Id"`
	Player2ID string `json:"player2Id"`
}

type ShowdownStart struct {
	Type           string  `json:"type"`
	FreezeDuration float64 `json:"freezeDuration"`
}

type ShowdownReady struct {
	Type   string          `json:"type"`
	Hearts []SnapshotHeart `json:"hearts"`
}

type HeartCaptured struct {
	Type        string `json:"type"`
	PlayerID    string `json:"playerId"`
	HeartID     int    `json:"heartId"`
	PlayerScore int    `json:"playerScore"`
}

type MatchEnd struct {
	Type         string `json:"type"`
	WinnerID     string `json:"winnerId,omitempty"`
	PayoutAmount string `json:"payoutAmount,omitempty"`
	Voided       bool   `json:"voided,omitempty"`
}

type RefundProcessed struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

type PlayerDisconnect struct {
	Type           string  `json:"type"`
	PlayerID       string  `json:"playerId"`
	GraceRemaining float64 `json:"graceRemaining"`
}

type PlayerReconnect struct {
	Type     string `json:"type"`
	PlayerID string `json:"playerId"`
}

type ReconnectState struct {
	Type    string           `json:"type"`
	MatchID string           `json:"matchId"`
	Role    string           `json:"role"`
	Tick    uint64           `json:"tick"`
	Players []SnapshotPlayer `json:"players"`
	Hearts  []SnapshotHeart  `json:"hearts,omitempty"`
	Scores  map[string]int   `json:"scores,omitempty"`
}
