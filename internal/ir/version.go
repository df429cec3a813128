package ir

// Version constants for the schema format and the analyzer.
const (
	// SchemaVersion is the version of the compiled schema format.
	SchemaVersion = "1"

	// AnalyzerVersion is the hb analyzer version.
	AnalyzerVersion = "0.1.0"
)
