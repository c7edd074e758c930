package config

// Simulation constants - the bots and the dynamics must agree on these
const (
	// World scale
	MetersPerPixel = 0.02 // 50 px = 1 m
	TrackStepPx    = 2.0  // centreline sampling step
	LaneWidthPx    = 40.0 // default when the track file has none

	// Timing
	PhysicsStep   = 1.0 / 120.0 // fixed simulation step, seconds
	FrameRate     = 60          // Hz, session loop wake-up rate
	BroadcastRate = 20          // Hz
	MaxFrameSteps = 3           // frame time is clamped to this many fixed steps

	// Vehicle dynamics
	Gravity          = 9.81 // m/s^2
	Friction         = 0.85 // tyre/slot friction coefficient
	MotorAccel       = 12.0 // m/s^2 at full throttle
	DragCoefficient  = 0.35 // quadratic drag
	DeslotTolerance  = 0.01 // m/s^2 over the lateral limit before a deslot
	OutwardImpulse   = 0.5  // outward speed as a fraction of forward speed
	MarshalDelay     = 2.0  // seconds off track before the respot
	OffTrackDecel    = 6.0  // m/s^2 while sliding off track
	GridSpacing      = 3.0  // metres between cars created by InitCars
	GridRowSpacing   = 3.0  // metres between starting grid rows
	GridColumns      = 2
	GridColumnOffset = 0.35 // fraction of the lane width

	// Driver
	LookaheadDistance = 15.0  // metres
	LookaheadStep     = 0.5   // metres
	MaxTargetSpeed    = 100.0 // m/s, used when no bend is in range
	IntegralLimit     = 5.0
	ThrottleDivisor   = 10.0

	// Race
	HumanCarIndex      = 0
	FalseStartThrottle = 0.1
	FalseStartPenalty  = 2.0 // seconds of throttle lockout after the start
	DefaultCountdown   = 3.0 // seconds

	// Input shaping
	ThrottleRampUp   = 1.5 // per second
	ThrottleRampDown = 2.0 // per second
	TriggerDeadzone  = 0.12

	// Sessions
	DefaultBotCount    = 3
	MaxBotCount        = 7
	MaxSessions        = 50
	MaxInputsPerTick   = 3
	SessionIdleTimeout = 120 // seconds without a connection before cleanup
)

// ServerConfig holds the settings of the serve command
type ServerConfig struct {
	Host       string
	Port       int
	TracksDir  string
	EnableCORS bool
	LogLevel   string
	LogFormat  string
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:       "0.0.0.0",
		Port:       8080,
		TracksDir:  "assets/tracks",
		EnableCORS: true,
		LogLevel:   "info",
		LogFormat:  "json",
	}
}
