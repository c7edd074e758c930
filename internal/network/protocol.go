package network

import (
	"encoding/binary"
	"errors"
	"math"
)

var (
	ErrInvalidMessage = errors.New("invalid message")
	ErrBufferTooSmall = errors.New("buffer too small")
)

const (
	stateHeaderSize = 10
	carStateSize    = 28
	maxTrackPoints  = math.MaxUint16
)

// Protocol handles binary encoding/decoding
type Protocol struct{}

// NewProtocol creates a new protocol handler
func NewProtocol() *Protocol {
	return &Protocol{}
}

// DecodeInput decodes a client input message (5 bytes)
func (p *Protocol) DecodeInput(data []byte) (*InputMessage, error) {
	if len(data) < 5 {
		return nil, ErrBufferTooSmall
	}

	if data[0] != MsgTypeInput {
		return nil, ErrInvalidMessage
	}

	return &InputMessage{
		MsgType:  data[0],
		Sequence: data[1],
		Keys:     data[2],
		Trigger:  data[3],
		Flags:    data[4],
	}, nil
}

// DecodeJoin decodes a join message
func (p *Protocol) DecodeJoin(data []byte) (*JoinMessage, error) {
	if len(data) < 2 {
		return nil, ErrBufferTooSmall
	}

	if data[0] != MsgTypeJoin {
		return nil, ErrInvalidMessage
	}

	name, offset, err := readString(data, 1)
	if err != nil {
		return nil, err
	}
	trackName, offset, err := readString(data, offset)
	if err != nil {
		return nil, err
	}
	if len(data) < offset+1 {
		return nil, ErrBufferTooSmall
	}

	return &JoinMessage{
		MsgType:    data[0],
		Name:       name,
		Track:      trackName,
		Difficulty: data[offset],
	}, nil
}

// DecodeStart decodes a start message
func (p *Protocol) DecodeStart(data []byte) (*StartMessage, error) {
	if len(data) < 2 {
		return nil, ErrBufferTooSmall
	}
	if data[0] != MsgTypeStart {
		return nil, ErrInvalidMessage
	}
	return &StartMessage{MsgType: data[0], Countdown: data[1]}, nil
}

// DecodeDifficulty decodes a difficulty change message
func (p *Protocol) DecodeDifficulty(data []byte) (*DifficultyMessage, error) {
	if len(data) < 2 {
		return nil, ErrBufferTooSmall
	}
	if data[0] != MsgTypeDifficulty {
		return nil, ErrInvalidMessage
	}
	return &DifficultyMessage{MsgType: data[0], Level: data[1]}, nil
}

// DecodePing extracts the client timestamp of a ping message
func (p *Protocol) DecodePing(data []byte) (uint64, error) {
	if len(data) < 9 {
		return 0, ErrBufferTooSmall
	}
	if data[0] != MsgTypePing {
		return 0, ErrInvalidMessage
	}
	return binary.LittleEndian.Uint64(data[1:9]), nil
}

// EncodeStateUpdate encodes a state update message
func (p *Protocol) EncodeStateUpdate(state RaceStateData) []byte {
	carCount := len(state.Cars)
	if carCount > 255 {
		carCount = 255
	}

	// Header: 10 bytes + 28 bytes per car
	buf := make([]byte, stateHeaderSize+carCount*carStateSize)

	buf[0] = MsgTypeStateUpdate
	binary.LittleEndian.PutUint16(buf[1:3], state.Tick)
	buf[3] = state.Phase
	buf[4] = state.Countdown
	buf[5] = state.Progress
	buf[6] = state.Flags
	binary.LittleEndian.PutUint16(buf[7:9], state.PenaltyMs)
	buf[9] = uint8(carCount)

	offset := stateHeaderSize
	for i := 0; i < carCount; i++ {
		p.encodeCarState(buf[offset:], state.Cars[i])
		offset += carStateSize
	}

	return buf
}

// encodeCarState encodes a single car (28 bytes)
func (p *Protocol) encodeCarState(buf []byte, car CarStateData) {
	buf[0] = car.Index
	buf[1] = car.Flags
	binary.LittleEndian.PutUint16(buf[2:4], car.Laps)
	putFloat32(buf[4:8], car.X)
	putFloat32(buf[8:12], car.Y)
	putFloat32(buf[12:16], car.Heading)
	putFloat32(buf[16:20], car.Speed)
	binary.LittleEndian.PutUint32(buf[20:24], car.BestLapMs)
	binary.LittleEndian.PutUint32(buf[24:28], car.CurrentLapMs)
}

// DecodeStateUpdate decodes a state update message. Used by headless
// clients and tests.
func (p *Protocol) DecodeStateUpdate(data []byte) (*RaceStateData, error) {
	if len(data) < stateHeaderSize {
		return nil, ErrBufferTooSmall
	}
	if data[0] != MsgTypeStateUpdate {
		return nil, ErrInvalidMessage
	}
	carCount := int(data[9])
	if len(data) < stateHeaderSize+carCount*carStateSize {
		return nil, ErrBufferTooSmall
	}

	state := &RaceStateData{
		Tick:      binary.LittleEndian.Uint16(data[1:3]),
		Phase:     data[3],
		Countdown: data[4],
		Progress:  data[5],
		Flags:     data[6],
		PenaltyMs: binary.LittleEndian.Uint16(data[7:9]),
		Cars:      make([]CarStateData, carCount),
	}
	for i := range state.Cars {
		b := data[stateHeaderSize+i*carStateSize:]
		state.Cars[i] = CarStateData{
			Index:        b[0],
			Flags:        b[1],
			Laps:         binary.LittleEndian.Uint16(b[2:4]),
			X:            getFloat32(b[4:8]),
			Y:            getFloat32(b[8:12]),
			Heading:      getFloat32(b[12:16]),
			Speed:        getFloat32(b[16:20]),
			BestLapMs:    binary.LittleEndian.Uint32(b[20:24]),
			CurrentLapMs: binary.LittleEndian.Uint32(b[24:28]),
		}
	}
	return state, nil
}

// EncodeSessionInfo encodes session info message
func (p *Protocol) EncodeSessionInfo(sessionID string, carCount, humanIndex, difficulty uint8) []byte {
	idBytes := truncate(sessionID)

	buf := make([]byte, 5+len(idBytes))
	buf[0] = MsgTypeSessionInfo
	buf[1] = uint8(len(idBytes))
	copy(buf[2:], idBytes)
	offset := 2 + len(idBytes)
	buf[offset] = carCount
	buf[offset+1] = humanIndex
	buf[offset+2] = difficulty

	return buf
}

// DecodeSessionInfo decodes a session info message
func (p *Protocol) DecodeSessionInfo(data []byte) (*SessionInfoMessage, error) {
	if len(data) < 2 {
		return nil, ErrBufferTooSmall
	}
	if data[0] != MsgTypeSessionInfo {
		return nil, ErrInvalidMessage
	}
	id, offset, err := readString(data, 1)
	if err != nil {
		return nil, err
	}
	if len(data) < offset+3 {
		return nil, ErrBufferTooSmall
	}
	return &SessionInfoMessage{
		MsgType:    data[0],
		SessionID:  id,
		CarCount:   data[offset],
		HumanIndex: data[offset+1],
		Difficulty: data[offset+2],
	}, nil
}

// EncodeTrackInfo encodes the track layout. Centreline points beyond what
// a uint16 count can hold are dropped.
func (p *Protocol) EncodeTrackInfo(info TrackInfoMessage) []byte {
	nameBytes := truncate(info.Name)
	pointCount := len(info.Points) / 2
	if pointCount > maxTrackPoints {
		pointCount = maxTrackPoints
	}

	// type, name, length, lane width, 4 bounds, count, points
	buf := make([]byte, 2+len(nameBytes)+4+4+16+2+pointCount*8)
	buf[0] = MsgTypeTrackInfo
	buf[1] = uint8(len(nameBytes))
	copy(buf[2:], nameBytes)
	offset := 2 + len(nameBytes)

	putFloat32(buf[offset:], info.TotalLength)
	putFloat32(buf[offset+4:], info.LaneWidth)
	offset += 8
	for _, b := range info.Bounds {
		putFloat32(buf[offset:], b)
		offset += 4
	}
	binary.LittleEndian.PutUint16(buf[offset:], uint16(pointCount))
	offset += 2
	for _, v := range info.Points[:pointCount*2] {
		putFloat32(buf[offset:], v)
		offset += 4
	}

	return buf
}

// DecodeTrackInfo decodes a track info message
func (p *Protocol) DecodeTrackInfo(data []byte) (*TrackInfoMessage, error) {
	if len(data) < 2 {
		return nil, ErrBufferTooSmall
	}
	if data[0] != MsgTypeTrackInfo {
		return nil, ErrInvalidMessage
	}
	name, offset, err := readString(data, 1)
	if err != nil {
		return nil, err
	}
	if len(data) < offset+26 {
		return nil, ErrBufferTooSmall
	}

	info := &TrackInfoMessage{
		MsgType:     data[0],
		Name:        name,
		TotalLength: getFloat32(data[offset:]),
		LaneWidth:   getFloat32(data[offset+4:]),
	}
	offset += 8
	for i := range info.Bounds {
		info.Bounds[i] = getFloat32(data[offset:])
		offset += 4
	}
	pointCount := int(binary.LittleEndian.Uint16(data[offset:]))
	offset += 2
	if len(data) < offset+pointCount*8 {
		return nil, ErrBufferTooSmall
	}
	info.Points = make([]float32, pointCount*2)
	for i := range info.Points {
		info.Points[i] = getFloat32(data[offset:])
		offset += 4
	}
	return info, nil
}

// EncodePong encodes a pong message
func (p *Protocol) EncodePong(timestamp uint64) []byte {
	buf := make([]byte, 9)
	buf[0] = MsgTypePong
	binary.LittleEndian.PutUint64(buf[1:9], timestamp)
	return buf
}

// EncodeError encodes an error message
func (p *Protocol) EncodeError(code uint8, message string) []byte {
	msgBytes := truncate(message)

	buf := make([]byte, 3+len(msgBytes))
	buf[0] = MsgTypeError
	buf[1] = code
	buf[2] = uint8(len(msgBytes))
	copy(buf[3:], msgBytes)

	return buf
}

// DecodeError decodes an error message
func (p *Protocol) DecodeError(data []byte) (*ErrorMessage, error) {
	if len(data) < 3 {
		return nil, ErrBufferTooSmall
	}
	if data[0] != MsgTypeError {
		return nil, ErrInvalidMessage
	}
	msg, _, err := readString(data, 2)
	if err != nil {
		return nil, err
	}
	return &ErrorMessage{MsgType: data[0], Code: data[1], Message: msg}, nil
}

// Client side encoders, used by headless clients and tests.

// EncodeInput encodes an input message
func (p *Protocol) EncodeInput(msg InputMessage) []byte {
	return []byte{MsgTypeInput, msg.Sequence, msg.Keys, msg.Trigger, msg.Flags}
}

// EncodeJoin encodes a join message
func (p *Protocol) EncodeJoin(name, trackName string, difficulty uint8) []byte {
	nameBytes := truncate(name)
	trackBytes := truncate(trackName)

	buf := make([]byte, 0, 4+len(nameBytes)+len(trackBytes))
	buf = append(buf, MsgTypeJoin, uint8(len(nameBytes)))
	buf = append(buf, nameBytes...)
	buf = append(buf, uint8(len(trackBytes)))
	buf = append(buf, trackBytes...)
	buf = append(buf, difficulty)
	return buf
}

// EncodeStart encodes a start message
func (p *Protocol) EncodeStart(countdown uint8) []byte {
	return []byte{MsgTypeStart, countdown}
}

// EncodeDifficulty encodes a difficulty change message
func (p *Protocol) EncodeDifficulty(level uint8) []byte {
	return []byte{MsgTypeDifficulty, level}
}

// EncodePing encodes a ping message
func (p *Protocol) EncodePing(timestamp uint64) []byte {
	buf := make([]byte, 9)
	buf[0] = MsgTypePing
	binary.LittleEndian.PutUint64(buf[1:9], timestamp)
	return buf
}

// EncodeTrigger converts an analog trigger value to its wire format
func EncodeTrigger(v float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, v)) * 255))
}

// DecodeTrigger converts a wire trigger value to [0, 1]
func DecodeTrigger(v uint8) float64 {
	return float64(v) / 255.0
}

// EncodeProgress converts a [0, 1] fraction to a byte
func EncodeProgress(v float64) uint8 {
	return EncodeTrigger(v)
}

// EncodeMillis converts seconds to milliseconds, saturating at limit.
func EncodeMillis(seconds float64, limit uint32) uint32 {
	if math.IsInf(seconds, 1) || seconds*1000 >= float64(limit) {
		return limit
	}
	if seconds <= 0 || math.IsNaN(seconds) {
		return 0
	}
	return uint32(seconds * 1000)
}

// readString reads a length-prefixed string starting at offset and returns
// the offset just past it.
func readString(data []byte, offset int) (string, int, error) {
	if len(data) < offset+1 {
		return "", 0, ErrBufferTooSmall
	}
	n := int(data[offset])
	start := offset + 1
	if len(data) < start+n {
		return "", 0, ErrBufferTooSmall
	}
	return string(data[start : start+n]), start + n, nil
}

func truncate(s string) []byte {
	b := []byte(s)
	if len(b) > 255 {
		b = b[:255]
	}
	return b
}

func putFloat32(buf []byte, v float32) {
	binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
}

func getFloat32(buf []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(buf))
}
