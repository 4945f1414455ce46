package model

// Classification is the result category of a language-analysis run.
type Classification string

const (
	ClassificationSingleLanguage Classification = "SINGLE_LANGUAGE"
	ClassificationMultiLanguage  Classification = "MULTI_LANGUAGE"
)

// LanguageSegment is one contiguous span of a detected language within a
// track, owned by a LanguageAnalysisResult.
type LanguageSegment struct {
	Language   string
	StartTime  float64
	EndTime    float64
	Confidence float64 // [0,1]
}

// AnalysisMetadata records provenance of a LanguageAnalysisResult.
type AnalysisMetadata struct {
	PluginName     string
	PluginVersion  string
	Model          string
	SamplePositions []float64
	SpeechRatio    float64
}

// LanguageAnalysisResult is the cached output of language/classification
// analysis for one Track. The cache is valid iff FileHash equals the
// file's current partial hash.
type LanguageAnalysisResult struct {
	TrackID             int64
	FileHash             string
	PrimaryLanguage      string
	PrimaryPercentage    float64
	Classification       Classification
	Segments             []LanguageSegment
	Metadata             AnalysisMetadata
}

// IsValidFor reports whether this cached result is still valid given the
// file's current partial hash.
func (r LanguageAnalysisResult) IsValidFor(currentFileHash string) bool {
	return r.FileHash == currentFileHash
}
