package media

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingTrack struct {
	id    string
	kind  Kind
	stops int
}

func (t *countingTrack) ID() string { return t.id }
func (t *countingTrack) Kind() Kind { return t.kind }
func (t *countingTrack) Stop()      { t.stops++ }

func TestStreamReleaseStopsTracksOnce(t *testing.T) {
	v := &countingTrack{id: "v", kind: KindVideo}
	a := &countingTrack{id: "a", kind: KindAudio}
	s := NewStream("s1", v, a)

	require.Len(t, s.VideoTracks(), 1)
	require.Len(t, s.AudioTracks(), 1)

	s.Release()
	s.Release()

	assert.Equal(t, 1, v.stops)
	assert.Equal(t, 1, a.stops)
}

func TestStreamDropAudio(t *testing.T) {
	v := &countingTrack{id: "v", kind: KindVideo}
	a := &countingTrack{id: "a", kind: KindAudio}
	s := NewStream("s1", v, a)

	s.DropAudio()
	assert.Empty(t, s.AudioTracks())
	assert.Equal(t, 1, a.stops)

	s.Release()
	assert.Equal(t, 1, a.stops, "dropped track must not be stopped again")
	assert.Equal(t, 1, v.stops)
}

func TestStreamTrimVideoKeepsFirst(t *testing.T) {
	v1 := &countingTrack{id: "v1", kind: KindVideo}
	v2 := &countingTrack{id: "v2", kind: KindVideo}
	v3 := &countingTrack{id: "v3", kind: KindVideo}
	s := NewStream("s1", v1, v2, v3)

	assert.Equal(t, 2, s.TrimVideo())
	require.Len(t, s.VideoTracks(), 1)
	assert.Equal(t, "v1", s.VideoTracks()[0].ID())
	assert.Equal(t, 1, v2.stops)
	assert.Equal(t, 1, v3.stops)
	assert.Zero(t, s.TrimVideo())

	s.Release()
	assert.Equal(t, 1, v1.stops)
	assert.Equal(t, 1, v2.stops, "trimmed track must not be stopped again")
}

func TestConstraintsLegacyShape(t *testing.T) {
	suppress := false
	c := Constraints{
		Shape: ShapeLegacy,
		Video: SourceConstraint{Source: SourceTab, SourceID: "id-1", FrameRate: 30},
		Audio: &SourceConstraint{Source: SourceTab, SourceID: "id-1", SuppressLocalAudioPlayback: &suppress},
	}

	raw, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"video": {"mandatory": {"chromeMediaSource": "tab", "chromeMediaSourceId": "id-1", "maxFrameRate": 30}},
		"audio": {"mandatory": {"chromeMediaSource": "tab", "chromeMediaSourceId": "id-1", "suppressLocalAudioPlayback": false}}
	}`, string(raw))
}

func TestConstraintsWithoutAudioRemovesKey(t *testing.T) {
	c := Constraints{
		Shape: ShapeModern,
		Video: SourceConstraint{Source: SourceDesktop, SourceID: "d", FrameRate: 15},
		Audio: &SourceConstraint{Source: SourceDesktop, SourceID: "d"},
	}

	stripped := c.WithoutAudio()
	assert.True(t, c.WantsAudio())
	assert.False(t, stripped.WantsAudio())

	raw, err := json.Marshal(stripped)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	_, hasAudio := decoded["audio"]
	assert.False(t, hasAudio)
	assert.JSONEq(t, `{"video": {"chromeMediaSource": "desktop", "chromeMediaSourceId": "d", "frameRate": {"ideal": 15, "max": 15}}}`, string(raw))
}

func TestErrorName(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewDeviceError(ErrNameNotFound, "no %s", "audio"))
	assert.Equal(t, ErrNameNotFound, ErrorName(err))
	assert.Equal(t, "NotFoundError: no audio", errors.Unwrap(err).Error())
	assert.Equal(t, ErrNameUnknown, ErrorName(errors.New("boom")))
}

func TestBlobReaderPreservesOrder(t *testing.T) {
	b := NewBlob("video/webm", []Chunk{NewChunk([]byte("ab")), NewChunk([]byte("cd")), NewChunk(nil)})
	assert.Equal(t, int64(4), b.Size())

	data, err := io.ReadAll(b.Reader())
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(data))
}
