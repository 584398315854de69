package wire

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/groupsync/pkg/types"
)

func TestDecode(t *testing.T) {
	cases := []struct {
		name     string
		in       string
		wantKind Kind
		wantErr  bool
	}{
		{name: "group update", in: `{"type":0,"data":{"id":"G1"},"sentAt":1}`, wantKind: KindGroupUpdate},
		{name: "pause without data", in: `{"type":4,"sentAt":5}`, wantKind: KindPause},
		{name: "add to queue", in: `{"type":7,"data":[]}`, wantKind: KindAddToQueue},
		{name: "unknown discriminant", in: `{"type":42,"data":{"x":1}}`, wantKind: KindUnknown},
		{name: "negative discriminant", in: `{"type":-3}`, wantKind: KindUnknown},
		{name: "bad json", in: `{"type":`, wantErr: true},
		{name: "missing type", in: `{"data":{}}`, wantErr: true},
		{name: "type not a number", in: `{"type":"Play"}`, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := Decode([]byte(tc.in))
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, IsDecodeError(err), "want *DecodeError, got %T", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantKind, msg.Kind)
		})
	}
}

func TestDecode_KeepsRawTypeForUnknown(t *testing.T) {
	msg, err := Decode([]byte(`{"type":42}`))
	require.NoError(t, err)
	assert.Equal(t, 42, msg.RawType)
	assert.Equal(t, "Unknown", msg.Kind.String())
}

func TestGroupSnapshotPayload(t *testing.T) {
	raw := `{"type":0,"sentAt":1700000000000,"data":{
		"id":"G1","name":"Friday",
		"members":[{"user":{"id":"u1"},"displayName":"one"},{"user":{"id":"u2"},"displayName":"two"}],
		"connectedMembers":[{"id":"u1"}],
		"currentlyPlaying":{"id":"s1","title":"Song A"},
		"previewQueue":[{"id":"q1","song":{"id":"s2"},"addedBy":{"id":"u2"}}],
		"playbackState":{"phase":"pause","position":12.5,"asOf":1700000000000},
		"publicGroup":true,"version":7}}`
	msg, err := Decode([]byte(raw))
	require.NoError(t, err)

	g, err := msg.GroupSnapshot()
	require.NoError(t, err)
	assert.Equal(t, "G1", g.ID)
	require.Len(t, g.Members, 2)
	assert.Equal(t, "u2", g.Members[1].User.ID)
	require.NotNil(t, g.CurrentlyPlaying)
	assert.Equal(t, "Song A", g.CurrentlyPlaying.Title)
	require.NotNil(t, g.PlaybackState)
	assert.True(t, g.PlaybackState.Paused())
	assert.Equal(t, 12.5, g.PlaybackState.PositionSeconds)
	assert.Equal(t, uint64(7), g.Version)
	assert.True(t, g.PublicGroup)
}

func TestPayloadAccessors_WrongKind(t *testing.T) {
	msg, err := Decode([]byte(`{"type":4}`))
	require.NoError(t, err)

	_, err = msg.GroupSnapshot()
	assert.True(t, IsDecodeError(err))
	_, err = msg.Timestamp()
	assert.True(t, IsDecodeError(err))
	_, err = msg.Seek()
	assert.True(t, IsDecodeError(err))
}

func TestTimestampPayload(t *testing.T) {
	msg, err := Decode([]byte(`{"type":5,"sentAt":1000,"data":{"timestamp":10.4,"sentAt":2000}}`))
	require.NoError(t, err)
	p, err := msg.Timestamp()
	require.NoError(t, err)
	assert.Equal(t, 10.4, p.Timestamp)
	assert.Equal(t, types.Millis(2000), p.SentAt)

	msg, err = Decode([]byte(`{"type":5,"sentAt":1000,"data":{"timestamp":3}}`))
	require.NoError(t, err)
	p, err = msg.Timestamp()
	require.NoError(t, err)
	assert.Equal(t, types.Millis(1000), p.SentAt, "falls back to envelope sentAt")

	msg, err = Decode([]byte(`{"type":5,"data":{}}`))
	require.NoError(t, err)
	_, err = msg.Timestamp()
	assert.True(t, IsDecodeError(err))
}

func TestSongsPayload_BothShapes(t *testing.T) {
	for _, raw := range []string{
		`{"type":7,"data":[{"id":"a"},{"id":"b"}]}`,
		`{"type":7,"data":{"songs":[{"id":"a"},{"id":"b"}]}}`,
	} {
		msg, err := Decode([]byte(raw))
		require.NoError(t, err)
		songs, err := msg.Songs()
		require.NoError(t, err)
		require.Len(t, songs, 2)
		assert.Equal(t, "b", songs[1].ID)
	}
}

func TestNextSongAndPlayPayloads(t *testing.T) {
	msg, _ := Decode([]byte(`{"type":1}`))
	s, err := msg.NextSongPayload()
	require.NoError(t, err)
	assert.Nil(t, s)

	msg, _ = Decode([]byte(`{"type":1,"data":{"id":"s2","title":"B"}}`))
	s, err = msg.NextSongPayload()
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "s2", s.ID)

	msg, _ = Decode([]byte(`{"type":3,"data":{"timestamp":4.5}}`))
	p, err := msg.Play()
	require.NoError(t, err)
	require.NotNil(t, p.Timestamp)
	assert.Equal(t, 4.5, *p.Timestamp)
	assert.Nil(t, p.Song)
}

func TestEncode(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_000)

	cases := []struct {
		name     string
		intent   types.PlaybackIntent
		wantType int
		wantData string
	}{
		{name: "play", intent: types.PlaybackIntent{Action: types.IntentPlay}, wantType: 3},
		{name: "pause", intent: types.PlaybackIntent{Action: types.IntentPause}, wantType: 4},
		{name: "next", intent: types.PlaybackIntent{Action: types.IntentNext}, wantType: 1},
		{name: "prev", intent: types.PlaybackIntent{Action: types.IntentPrev}, wantType: 2},
		{name: "seek", intent: types.PlaybackIntent{Action: types.IntentSeek, Offset: 30}, wantType: 6, wantData: `{"timestamp":30}`},
		{name: "enqueue", intent: types.PlaybackIntent{Action: types.IntentEnqueue, Songs: []types.Song{{ID: "x", Title: "X", Artist: "Y"}}}, wantType: 7, wantData: `{"songs":[{"id":"x","title":"X","artist":"Y"}]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd, err := FromIntent(tc.intent)
			require.NoError(t, err)
			raw, err := Encode(cmd, at)
			require.NoError(t, err)

			var got struct {
				Type   int             `json:"type"`
				Data   json.RawMessage `json:"data"`
				SentAt int64           `json:"sentAt"`
			}
			require.NoError(t, json.Unmarshal(raw, &got))
			assert.Equal(t, tc.wantType, got.Type)
			assert.Equal(t, int64(1_700_000_000_000), got.SentAt)
			if tc.wantData == "" {
				assert.Empty(t, got.Data)
			} else {
				assert.JSONEq(t, tc.wantData, string(got.Data))
			}
		})
	}
}

func TestEncode_Join(t *testing.T) {
	raw, err := Encode(Join("G1", "c-1"), time.UnixMilli(5))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":100,"data":{"groupId":"G1","clientId":"c-1"},"sentAt":5}`, string(raw))
}

func TestFromIntent_Rejects(t *testing.T) {
	for _, in := range []types.PlaybackIntent{
		{Action: "shuffle"},
		{Action: types.IntentSeek, Offset: -1},
		{Action: types.IntentEnqueue},
	} {
		_, err := FromIntent(in)
		assert.ErrorIs(t, err, ErrUnsupportedCommand)
	}
	_, err := Encode(Command{Kind: KindTimestampUpdate}, time.Now())
	assert.ErrorIs(t, err, ErrUnsupportedCommand)
}
