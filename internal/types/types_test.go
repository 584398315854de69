package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/groupsync/pkg/types"
)

func TestClientMessage_Intent(t *testing.T) {
	var m ClientMessage
	require.NoError(t, json.Unmarshal([]byte(`{"type":"seek","offset":12.5}`), &m))
	in, ok := m.Intent()
	require.True(t, ok)
	assert.Equal(t, types.IntentSeek, in.Action)
	assert.InDelta(t, 12.5, in.Offset, 1e-9)

	m = ClientMessage{Type: "enqueue", Songs: []types.Song{{ID: "a"}}}
	in, ok = m.Intent()
	require.True(t, ok)
	assert.Len(t, in.Songs, 1)

	for _, kind := range []string{"play", "pause", "next", "prev"} {
		_, ok := ClientMessage{Type: kind}.Intent()
		assert.True(t, ok, kind)
	}

	_, ok = ClientMessage{Type: "dance"}.Intent()
	assert.False(t, ok)
}
