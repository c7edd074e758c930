package network

// Message types
const (
	// Client -> Server
	MsgTypeInput      uint8 = 0x01
	MsgTypeJoin       uint8 = 0x02
	MsgTypeLeave      uint8 = 0x03
	MsgTypePing       uint8 = 0x04
	MsgTypeStart      uint8 = 0x05
	MsgTypeDifficulty uint8 = 0x06

	// Server -> Client
	MsgTypeStateUpdate uint8 = 0x10
	MsgTypeSessionInfo uint8 = 0x14
	MsgTypePong        uint8 = 0x15
	MsgTypeTrackInfo   uint8 = 0x16
	MsgTypeError       uint8 = 0xFF
)

// Car flags
const (
	FlagOffTrack uint8 = 1 << 0
	FlagHuman    uint8 = 1 << 1
)

// Race flags
const (
	FlagFalseStart uint8 = 1 << 0
	FlagPaused     uint8 = 1 << 1
)

// Key flags (bit field)
const (
	KeyAccelerate uint8 = 1 << 0
	KeyBrake      uint8 = 1 << 1
)

// Input flags
const (
	InputFlagPaused uint8 = 1 << 0 // client window hidden
)

// NoLapTime marks a best lap that has not been set yet.
const NoLapTime uint32 = 0xFFFFFFFF

// InputMessage from client (5 bytes)
type InputMessage struct {
	MsgType  uint8
	Sequence uint8
	Keys     uint8
	Trigger  uint8 // 0-255 -> 0.0 to 1.0
	Flags    uint8
}

// JoinMessage from client
type JoinMessage struct {
	MsgType    uint8
	Name       string
	Track      string
	Difficulty uint8
}

// StartMessage from client, asks for a new race
type StartMessage struct {
	MsgType   uint8
	Countdown uint8 // seconds
}

// DifficultyMessage from client
type DifficultyMessage struct {
	MsgType uint8
	Level   uint8
}

// RaceStateData is the payload of a state update.
type RaceStateData struct {
	Tick      uint16
	Phase     uint8
	Countdown uint8 // whole seconds left
	Progress  uint8 // 0-255 -> countdown progress 0.0 to 1.0
	Flags     uint8
	PenaltyMs uint16
	Cars      []CarStateData
}

// CarStateData in state update (28 bytes per car)
type CarStateData struct {
	Index        uint8
	Flags        uint8
	Laps         uint16
	X            float32 // pixels
	Y            float32 // pixels
	Heading      float32 // radians
	Speed        float32 // m/s
	BestLapMs    uint32  // NoLapTime before the first lap
	CurrentLapMs uint32
}

// SessionInfoMessage to client
type SessionInfoMessage struct {
	MsgType    uint8
	SessionID  string
	CarCount   uint8
	HumanIndex uint8
	Difficulty uint8
}

// TrackInfoMessage to client
type TrackInfoMessage struct {
	MsgType     uint8
	Name        string
	TotalLength float32 // metres
	LaneWidth   float32 // pixels
	Bounds      [4]float32
	Points      []float32 // x, y pairs in pixels
}

// PongMessage to client
type PongMessage struct {
	MsgType   uint8
	Timestamp uint64
}

// ErrorMessage to client
type ErrorMessage struct {
	MsgType uint8
	Code    uint8
	Message string
}

// Error codes
const (
	ErrorCodeInvalidMessage uint8 = 1
	ErrorCodeLobbyFull      uint8 = 2
	ErrorCodeUnknownTrack   uint8 = 3
	ErrorCodeServerError    uint8 = 4
	ErrorCodeNotInSession   uint8 = 5
)
