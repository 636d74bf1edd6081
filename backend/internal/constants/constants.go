package constants

// Discord constants
const (
	// DiscordMaxMessageLength is the maximum character limit for Discord messages
	DiscordMaxMessageLength = 2000
)

// Channel history constants
const (
	// ChannelHistorySize is how many recent messages are kept per channel for
	// ambient proximity inference
	ChannelHistorySize = 5
)

// Layout constants
const (
	// LayoutDamping reduces per-iteration displacement to suppress oscillation
	LayoutDamping = 0.85
	// LayoutIdealEdgeLength is the zero-force spring length in normalized space
	LayoutIdealEdgeLength = 0.35
	// LayoutRepulsion scales the pairwise inverse-square repulsive force
	LayoutRepulsion = 0.005
	// LayoutSpring scales the per-edge attractive force
	LayoutSpring = 0.08
	// LayoutMinDistance caps repulsion when nodes nearly overlap
	LayoutMinDistance = 0.02
	// LayoutNegligibleWeight is the edge weight below which an edge does not
	// count toward cluster connectivity
	LayoutNegligibleWeight = 0.1
	// LayoutMaxStep bounds how far a node may move in a single iteration
	LayoutMaxStep = 0.1
)
