package tooladapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"vpo/internal/model"
)

type fakeRemuxer struct {
	name      string
	container string
	reorder   bool
	avail     bool
}

func (f *fakeRemuxer) Name() string                        { return f.name }
func (f *fakeRemuxer) SupportsReorder() bool                { return f.reorder }
func (f *fakeRemuxer) SupportsContainer(c string) bool      { return c == f.container }
func (f *fakeRemuxer) Available(ctx context.Context) bool   { return f.avail }
func (f *fakeRemuxer) Remux(ctx context.Context, path string, plan RemuxPlan) (string, error) {
	return path, nil
}

type fakeEditor struct{ avail bool }

func (f *fakeEditor) Name() string                      { return "fake-editor" }
func (f *fakeEditor) Available(ctx context.Context) bool { return f.avail }
func (f *fakeEditor) Apply(ctx context.Context, path string, edit MetadataEdit) error {
	return nil
}

func newTestAdapters(mkvAvail, otherAvail, editAvail bool) *Adapters {
	return &Adapters{
		MatroskaRemux: &fakeRemuxer{name: "mkvmerge", container: "matroska", reorder: true, avail: mkvAvail},
		OtherRemux:    &fakeRemuxer{name: "ffmpeg", container: "mp4", reorder: true, avail: otherAvail},
		MetadataEditor: &fakeEditor{avail: editAvail},
	}
}

func TestSelectRemuxOrEditor_ContainerChangeRoutesToRemuxer(t *testing.T) {
	a := newTestAdapters(true, true, true)
	r, e, err := a.SelectRemuxOrEditor(context.Background(), "matroska", RoutePlan{
		ChangesContainer: true, TargetContainer: "mp4",
	})
	require.NoError(t, err)
	require.Nil(t, e)
	require.Equal(t, "ffmpeg", r.Name())
}

func TestSelectRemuxOrEditor_MetadataOnlyRoutesToEditor(t *testing.T) {
	a := newTestAdapters(true, true, true)
	r, e, err := a.SelectRemuxOrEditor(context.Background(), "matroska", RoutePlan{})
	require.NoError(t, err)
	require.Nil(t, r)
	require.NotNil(t, e)
}

func TestSelectRemuxOrEditor_UnavailableToolSurfacesNamedError(t *testing.T) {
	a := newTestAdapters(false, true, true)
	_, _, err := a.SelectRemuxOrEditor(context.Background(), "matroska", RoutePlan{
		RemovesTracks: true,
	})
	require.Error(t, err)
	var unavail *model.ToolUnavailableError
	require.ErrorAs(t, err, &unavail)
	require.Equal(t, "mkvmerge", unavail.Tool)
}

func TestSelectRemuxOrEditor_ReorderFallsBackToReorderCapableRemuxer(t *testing.T) {
	a := newTestAdapters(true, true, true)
	a.MatroskaRemux = &fakeRemuxer{name: "mkvmerge", container: "matroska", reorder: false, avail: true}
	r, _, err := a.SelectRemuxOrEditor(context.Background(), "matroska", RoutePlan{
		ReordersTracks: true,
	})
	require.NoError(t, err)
	require.Equal(t, "ffmpeg", r.Name())
}

type fakeIntrospector struct{ avail bool }

func (f *fakeIntrospector) Name() string                       { return "fake-probe" }
func (f *fakeIntrospector) Available(ctx context.Context) bool { return f.avail }
func (f *fakeIntrospector) Probe(ctx context.Context, path string) (ContainerProbe, error) {
	return ContainerProbe{}, nil
}

type fakeTranscoder struct {
	avail bool
	caps  EncoderCapabilities
}

func (f *fakeTranscoder) Name() string                       { return "fake-ffmpeg" }
func (f *fakeTranscoder) Available(ctx context.Context) bool { return f.avail }
func (f *fakeTranscoder) Capabilities(ctx context.Context) (EncoderCapabilities, error) {
	return f.caps, nil
}
func (f *fakeTranscoder) Transcode(ctx context.Context, path string, decision TranscodeDecision, onProgress func(ProgressTick)) (string, error) {
	return path, nil
}

func TestDiscoverCapabilitiesAggregatesAllFiveTools(t *testing.T) {
	a := &Adapters{
		Introspector:   &fakeIntrospector{avail: true},
		MetadataEditor: &fakeEditor{avail: true},
		MatroskaRemux:  &fakeRemuxer{name: "mkvmerge", container: "matroska", avail: true},
		OtherRemux:     &fakeRemuxer{name: "ffmpeg", container: "mp4", avail: false},
		Transcoder:     &fakeTranscoder{avail: true, caps: EncoderCapabilities{HasHardware: true, VideoEncoders: []string{"libx265"}}},
	}

	report := a.DiscoverCapabilities(context.Background())
	require.True(t, report.IntrospectorAvailable)
	require.True(t, report.MetadataEditorAvailable)
	require.True(t, report.MatroskaRemuxAvailable)
	require.False(t, report.OtherRemuxAvailable)
	require.True(t, report.TranscoderAvailable)
	require.True(t, report.Capabilities.HasHardware)
}

func TestDiscoverCapabilitiesSkipsCapabilitiesWhenTranscoderUnavailable(t *testing.T) {
	a := &Adapters{
		Introspector:   &fakeIntrospector{avail: false},
		MetadataEditor: &fakeEditor{avail: false},
		MatroskaRemux:  &fakeRemuxer{name: "mkvmerge", container: "matroska", avail: false},
		OtherRemux:     &fakeRemuxer{name: "ffmpeg", container: "mp4", avail: false},
		Transcoder:     &fakeTranscoder{avail: false, caps: EncoderCapabilities{HasHardware: true}},
	}

	report := a.DiscoverCapabilities(context.Background())
	require.False(t, report.TranscoderAvailable)
	require.False(t, report.Capabilities.HasHardware)
}
