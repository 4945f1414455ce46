package tooladapter

import (
	"context"
	"fmt"

	"vpo/internal/model"
)

// mkvpropeditEditor implements MetadataEditor over an mkvpropedit-class
// binary: in-place flag/language/title edits without repacking streams.
type mkvpropeditEditor struct {
	binary string
}

// NewMetadataEditor returns the MetadataEditor backed by the given
// mkvpropedit-class binary name.
func NewMetadataEditor(binary string) MetadataEditor {
	if binary == "" {
		binary = "mkvpropedit"
	}
	return &mkvpropeditEditor{binary: binary}
}

func (e *mkvpropeditEditor) Name() string { return e.binary }

func (e *mkvpropeditEditor) Available(ctx context.Context) bool {
	return available(e.binary)
}

// Apply issues one invocation covering every requested edit; exit 0 is
// success, non-zero is failure returned as a ToolError carrying stderr
// verbatim.
func (e *mkvpropeditEditor) Apply(ctx context.Context, path string, edit MetadataEdit) error {
	if edit.IsEmpty() {
		return nil
	}
	if !e.Available(ctx) {
		return &model.ToolUnavailableError{Tool: e.binary, Purpose: "in-place metadata edit"}
	}

	args := []string{path}
	for _, f := range edit.SetDefault {
		args = append(args, "--edit", trackSelector(f.TrackIndex), "--set", fmt.Sprintf("flag-default=%d", boolFlag(f.Value)))
	}
	for _, f := range edit.SetForced {
		args = append(args, "--edit", trackSelector(f.TrackIndex), "--set", fmt.Sprintf("flag-forced=%d", boolFlag(f.Value)))
	}
	for _, l := range edit.SetLanguage {
		args = append(args, "--edit", trackSelector(l.TrackIndex), "--set", fmt.Sprintf("language=%s", l.Language))
	}
	for _, tt := range edit.SetTitle {
		args = append(args, "--edit", trackSelector(tt.TrackIndex), "--set", fmt.Sprintf("name=%s", tt.Title))
	}
	if len(edit.SetTrackOrder) > 0 {
		args = append(args, "--track-order", trackOrderArg(edit.SetTrackOrder))
	}

	_, _, err := runCapture(ctx, Timeout, e.binary, args...)
	return err
}

func trackSelector(index int) string {
	return fmt.Sprintf("track:%d", index+1) // mkvpropedit track selectors are 1-based
}

func boolFlag(b bool) int {
	if b {
		return 1
	}
	return 0
}

func trackOrderArg(order []int) string {
	out := ""
	for i, idx := range order {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("0:%d", idx)
	}
	return out
}
