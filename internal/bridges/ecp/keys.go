package ecp

// Remote keys used by the bridge's transport and power commands.
const (
	KeyHome     = "Home"
	KeyPlay     = "Play"
	KeyBack     = "Back"
	KeyRev      = "Rev"
	KeyFwd      = "Fwd"
	KeySelect   = "Select"
	KeyPowerOn  = "PowerOn"
	KeyPowerOff = "PowerOff"
)

// Player states reported by /query/media-player.
const (
	PlayerPlay   = "play"
	PlayerPause  = "pause"
	PlayerStop   = "stop"
	PlayerClose  = "close"
	PlayerBuffer = "buffer"
	PlayerOpen   = "open"
	PlayerNone   = "none"
)
