package ir

// Version constants for graph definitions and the engine.
const (
	// IRVersion is the graph definition schema version.
	IRVersion = "1"

	// EngineVersion is the spaghetti engine version.
	EngineVersion = "0.1.0"
)
