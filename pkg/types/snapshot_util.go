package types

import "slices"

// Clone returns a deep copy; observers get clones so nothing they hold aliases session state.
func (g GroupSnapshot) Clone() GroupSnapshot {
	out := g
	out.Members = make([]Member, len(g.Members))
	for i, m := range g.Members {
		if m.Permissions != nil {
			p := *m.Permissions
			m.Permissions = &p
		}
		out.Members[i] = m
	}
	out.ConnectedMembers = slices.Clone(g.ConnectedMembers)
	out.PreviewQueue = make([]QueueItem, len(g.PreviewQueue))
	for i, q := range g.PreviewQueue {
		q.Song = q.Song.Clone()
		out.PreviewQueue[i] = q
	}
	if g.CurrentlyPlaying != nil {
		s := g.CurrentlyPlaying.Clone()
		out.CurrentlyPlaying = &s
	}
	if g.PlaybackState != nil {
		ps := *g.PlaybackState
		out.PlaybackState = &ps
	}
	return out
}

func (s Song) Clone() Song {
	if s.ServiceIDs != nil {
		ids := make(map[string]string, len(s.ServiceIDs))
		for k, v := range s.ServiceIDs {
			ids[k] = v
		}
		s.ServiceIDs = ids
	}
	return s
}

func (g GroupSnapshot) IsConnected(u UserRef) bool {
	return slices.Contains(g.ConnectedMembers, u)
}

// MemberPermissions falls back to the group default when the member has no override.
func (g GroupSnapshot) MemberPermissions(u UserRef) (Permissions, bool) {
	for _, m := range g.Members {
		if m.User != u {
			continue
		}
		if m.Permissions != nil {
			return *m.Permissions, true
		}
		return g.DefaultPermissions, true
	}
	return Permissions{}, false
}

// WithCurrentSong returns a copy with song as the current track, playing from zero.
func (g GroupSnapshot) WithCurrentSong(song Song, asOf Millis) GroupSnapshot {
	out := g.Clone()
	s := song.Clone()
	out.CurrentlyPlaying = &s
	out.PlaybackState = &PlaybackState{Phase: PhasePlay, PositionSeconds: 0, AsOf: asOf}
	return out
}
