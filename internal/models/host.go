package models

// HostConfig describes the server process owning the world directories.
type HostConfig struct {
	DataDir       string
	WorldMarker   string // file a subdirectory must contain to count as a world; empty accepts any
	ResumeOnStart bool   // re-enable persistence once at startup
	Commands      HostCommands
}

// HostCommands are argv templates run against the host.
// Placeholders: {store} for Pause/Resume, {message} and {color} for Broadcast.
type HostCommands struct {
	Pause     []string
	Resume    []string
	Broadcast []string
}

// Color is a rendering hint for broadcast messages.
type Color string

// Broadcast colors.
const (
	ColorYellow Color = "yellow"
	ColorGreen  Color = "green"
	ColorRed    Color = "red"
)
