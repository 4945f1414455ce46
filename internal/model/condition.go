package model

// ConditionKind is the tag of the Condition sum type. Implemented as a
// closed set of tagged variants rather than an interface hierarchy: the
// evaluator switches on Kind, and each branch is a pure function (see
// internal/evaluator). Adding a condition means adding a Kind and a branch.
type ConditionKind string

const (
	CondExists            ConditionKind = "exists"
	CondCount             ConditionKind = "count"
	CondAudioMultiLang    ConditionKind = "audio_is_multi_language"
	CondPluginMetadata    ConditionKind = "plugin_metadata"
	CondContainerMetadata ConditionKind = "container_metadata"
	CondIsOriginal        ConditionKind = "is_original"
	CondIsDubbed          ConditionKind = "is_dubbed"
	CondAnd               ConditionKind = "and"
	CondOr                ConditionKind = "or"
	CondNot               ConditionKind = "not"
)

// MetadataOp is the operator vocabulary for PluginMetadata/ContainerMetadata
// conditions.
type MetadataOp string

const (
	MetaEq       MetadataOp = "eq"
	MetaNeq      MetadataOp = "neq"
	MetaContains MetadataOp = "contains"
	MetaLt       MetadataOp = "lt"
	MetaLte      MetadataOp = "lte"
	MetaGt       MetadataOp = "gt"
	MetaGte      MetadataOp = "gte"
	MetaExists   MetadataOp = "exists"
)

// CountExpr pairs a TrackFilter with a cardinality comparison for Count.
type CountExpr struct {
	Filter TrackFilter
	Op     ComparisonOp
	N      int
}

// MultiLangParams holds the parameters of an AudioIsMultiLanguage condition.
type MultiLangParams struct {
	TrackIndex      *int
	PrimaryLanguage string
	Threshold       float64 // default 0.05
}

// PluginMetaParams holds the parameters of a PluginMetadata condition.
type PluginMetaParams struct {
	Plugin string
	Field  string
	Value  string
	Op     MetadataOp
}

// ContainerMetaParams holds the parameters of a ContainerMetadata condition.
type ContainerMetaParams struct {
	Field string
	Value string
	Op    MetadataOp
}

// ClassificationParams holds the parameters of IsOriginal/IsDubbed.
type ClassificationParams struct {
	TrackIndex    *int
	MinConfidence float64
	Language      string // optional; empty means "any"
}

// Condition is the sum type over the condition algebra. Exactly the fields
// relevant to Kind are populated.
type Condition struct {
	Kind ConditionKind

	Filter    *TrackFilter // Exists
	Count     *CountExpr   // Count
	MultiLang *MultiLangParams
	PluginMeta *PluginMetaParams
	ContainerMeta *ContainerMetaParams
	Classification *ClassificationParams // IsOriginal / IsDubbed

	Children []Condition // And / Or
	Child    *Condition  // Not
}

// ConditionalActionKind is the tag of the ConditionalAction sum type.
type ConditionalActionKind string

const (
	ActionSkip        ConditionalActionKind = "skip"
	ActionWarn        ConditionalActionKind = "warn"
	ActionFail        ConditionalActionKind = "fail"
	ActionSetForced   ConditionalActionKind = "set_forced"
	ActionSetDefault  ConditionalActionKind = "set_default"
	ActionSetLanguage ConditionalActionKind = "set_language"
)

// SkipKind enumerates what a Skip ConditionalAction suppresses.
type SkipKind string

const (
	SkipVideoTranscode SkipKind = "video_transcode"
	SkipAudioTranscode SkipKind = "audio_transcode"
	SkipTrackFilter    SkipKind = "track_filter"
)

// ConditionalAction is the sum type of side effects a ConditionalRule branch
// can apply. Templates ({filename}, {path}, {rule_name}) are substituted by
// the caller (internal/planner) before the message reaches a log or error.
type ConditionalAction struct {
	Kind ConditionalActionKind

	// Skip
	SkipTarget SkipKind

	// Warn / Fail
	Template string

	// SetForced / SetDefault
	TrackType *TrackType
	Language  string // optional match filter for SetForced/SetDefault
	BoolValue bool

	// SetLanguage
	NewLanguage  string // literal new language, or "" if PluginField set
	PluginField  string // "plugin:field" form meaning "copy from plugin metadata"
	MatchLanguage string // optional: only tracks currently tagged with this language
}
