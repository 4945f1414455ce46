package model

// OnErrorMode is the effect applied when a phase operation fails.
type OnErrorMode string

const (
	OnErrorSkip     OnErrorMode = "skip"
	OnErrorContinue OnErrorMode = "continue"
	OnErrorFail     OnErrorMode = "fail"
)

// MinSupportedSchemaVersion is the lowest policy schema_version this core
// accepts; earlier documents are rejected during policy loading (out of
// core scope — the core only ever sees an already-validated Policy).
const MinSupportedSchemaVersion = 12

// PolicyConfig is the policy document's global configuration block.
type PolicyConfig struct {
	LanguagePreferences []string // preferred display form order, e.g. ["eng", "jpn"]
	CommentaryPatterns  []string // regexes identifying commentary tracks by title
	OnError             OnErrorMode
}

// Policy is the validated, in-memory form of an authored policy document.
// Only this form ever enters the core (§3: "only their validated in-memory
// form enters the core").
type Policy struct {
	SchemaVersion int
	Name          string
	Config        PolicyConfig
	Phases        []Phase
}

// FallbackMode governs what the track filter does when too few tracks
// survive language filtering.
type FallbackMode string

const (
	FallbackError           FallbackMode = "error"
	FallbackKeepAll         FallbackMode = "keep_all"
	FallbackKeepFirst       FallbackMode = "keep_first"
	FallbackContentLanguage FallbackMode = "content_language"
)

// Phase is one named step of a policy: a bundle of optional operations plus
// gating (skip_when / depends_on / run_if).
type Phase struct {
	Name string

	ContainerChange  *ContainerChangeOp
	AudioFilter      *TrackFilterOp
	SubtitleFilter   *SubtitleFilterOp
	AttachmentFilter *AttachmentFilterOp
	TrackOrder       *TrackOrderOp
	DefaultFlags     *DefaultFlagsOp
	ConditionalRules []ConditionalRule
	AudioSynthesis   []AudioSynthesisDef
	VideoTranscode   *VideoTranscodeOp
	AudioTranscode   *AudioTranscodeOp
	Transcription    *TranscriptionOp
	FileTimestamp    *FileTimestampOp
	AudioActions     *AudioActionsOp
	SubtitleActions  *SubtitleActionsOp

	SkipWhen   []Condition // OR'd together
	DependsOn  []string    // must name phases strictly earlier in the list

	// RunIfPhaseModified is the name of an earlier phase; if set, this phase
	// only runs when that phase modified the file (§4.F: "run_if.phase_modified(p)").
	// It is a separate field from the Condition algebra because
	// phase-modified-ness is a planner-run-history fact, not a track/
	// metadata predicate the evaluator can see.
	RunIfPhaseModified string

	OnError *OnErrorMode // overrides PolicyConfig.OnError for this phase only
}

// EffectiveOnError resolves the phase-level override, falling back to the
// policy's global setting.
func (p Phase) EffectiveOnError(global OnErrorMode) OnErrorMode {
	if p.OnError != nil {
		return *p.OnError
	}
	return global
}

// ContainerChangeOp requests remuxing the file to a new container format.
type ContainerChangeOp struct {
	TargetContainer string
}

// ComparisonOp is the operator a NumericFilter applies to a numeric track
// attribute.
type ComparisonOp string

const (
	CmpEq  ComparisonOp = "eq"
	CmpLt  ComparisonOp = "lt"
	CmpLte ComparisonOp = "lte"
	CmpGt  ComparisonOp = "gt"
	CmpGte ComparisonOp = "gte"
)

// NumericFilter is a single numeric comparison, e.g. channels >= 6.
type NumericFilter struct {
	Op    ComparisonOp
	Value float64
}

// TrackFilter is the shared filter vocabulary used by Exists/Count
// conditions and by the planner's track-filtering operations.
type TrackFilter struct {
	Type     TrackType
	Language []string // cross-standard matched, see internal/evaluator
	Codec    []string // lowercased exact match; "pcm_*" wildcard
	IsDefault *bool
	IsForced  *bool
	Channels  *NumericFilter
	Width     *NumericFilter
	Height    *NumericFilter
	TitleSubstring string // case-insensitive substring match
	TitleRegex     string // compiled regex match (mutually exclusive with substring)
}

// TrackFilterOp is the audio track-filtering operation of a phase.
type TrackFilterOp struct {
	KeepLanguages       []string
	PreserveSpecial     []string // classifications exempt from language filtering: music, sfx, non_speech, commentary
	Minimum             int
	Fallback            FallbackMode
}

// SubtitleFilterOp is the subtitle track-filtering operation of a phase.
type SubtitleFilterOp struct {
	RemoveAll      bool
	PreserveForced bool
	KeepLanguages  []string
}

// AttachmentFilterOp is the attachment-filtering operation of a phase.
type AttachmentFilterOp struct {
	RemoveAll bool
}

// TrackOrderOp resolves a symbolic track-type sequence into a concrete
// track permutation, e.g. ["video", "audio_main", "audio_alternate", "subtitle_main"].
type TrackOrderOp struct {
	Sequence []string
}

// DefaultFlagsOp selects, per track type, whether to (re)assign the default
// flag and whether to clear it from tracks not selected.
type DefaultFlagsOp struct {
	Types       []TrackType
	ClearOthers bool
}

// ConditionalRule is one `when -> then_actions [else_actions]` rule.
type ConditionalRule struct {
	Name         string
	When         Condition
	ThenActions  []ConditionalAction
	ElseActions  []ConditionalAction
}

// PreferenceCriterionKind enumerates the audio-synthesis source-selection
// criteria, tried in declared order.
type PreferenceCriterionKind string

const (
	PrefLanguage     PreferenceCriterionKind = "language"
	PrefNotCommentary PreferenceCriterionKind = "not_commentary"
	PrefChannels     PreferenceCriterionKind = "channels"
	PrefCodec        PreferenceCriterionKind = "codec"
)

// ChannelsPreference is the value of a "channels" PreferenceCriterion:
// either the literal MAX/MIN sentinel or an exact channel count.
type ChannelsPreference struct {
	Max   bool
	Min   bool
	Exact int // used when neither Max nor Min is set
}

// PreferenceCriterion filters (and sometimes ranks) synthesis source-track
// candidates.
type PreferenceCriterion struct {
	Kind           PreferenceCriterionKind
	Language       []string
	NotCommentary  bool
	Channels       ChannelsPreference
	Codec          []string
}

// AudioSynthesisDef describes one new audio track to synthesize from an
// existing source track.
type AudioSynthesisDef struct {
	Name            string // forbidden: '/', '\', ".."
	CreateIf        *Condition // default true (nil means unconditional)
	TargetCodec     string
	TargetChannels  int
	Preferences     []PreferenceCriterion
	BitrateKbps     *int // nil means use the codec x channels default table
	Title           string // "inherit" or literal
	Language        string // "inherit" or literal
	TargetPosition  string // integer string, "after_source", or "end"
}

// VideoTranscodeOp requests a policy-driven video transcode decision.
type VideoTranscodeOp struct {
	TargetCodec    string
	MaxWidth       int
	MaxHeight      int
	TargetEncoder  string // "hardware" | "software" | "" (either)
	PreserveHDR    bool
}

// AudioTranscodeOp requests re-encoding existing audio tracks that fail a
// codec/channel compatibility check (distinct from audio synthesis, which
// creates a new track).
type AudioTranscodeOp struct {
	TargetCodec    string
	BitrateKbps    *int
}

// TranscriptionOp requests generating subtitle tracks via an external
// transcription model. The model invocation itself is out of core scope
// (§1); this operation only carries the parameters the dispatch needs.
type TranscriptionOp struct {
	Language string
	Model    string
}

// FileTimestampOp sets the file's modification time after processing.
type FileTimestampOp struct {
	SetToNow    bool
	PreserveOriginal bool
}

// AudioActionsOp and SubtitleActionsOp carry the resolved ConditionalAction
// side effects (set-language / set-forced / set-default) that apply to
// tracks of that type, collected from ConditionalRules during planning.
type AudioActionsOp struct {
	Actions []ConditionalAction
}

type SubtitleActionsOp struct {
	Actions []ConditionalAction
}
