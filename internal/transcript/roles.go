package transcript

// RolePolicy maps speakers, in order of first appearance, to roles.
// UnknownSpeaker keeps its place in order but is always labelled RoleUnknown,
// whatever the policy returns for it.
type RolePolicy func(order []SpeakerID) map[SpeakerID]Role

// FirstSpeakerExecutive is the default policy: whoever speaks first is taken
// to be the executive (the agent usually greets first), everybody else is a
// client. It is a heuristic, not something derived from the audio.
func FirstSpeakerExecutive(order []SpeakerID) map[SpeakerID]Role {
	roles := make(map[SpeakerID]Role, len(order))
	for i, speaker := range order {
		if i == 0 {
			roles[speaker] = RoleExecutive
		} else {
			roles[speaker] = RoleClient
		}
	}
	return roles
}

// SpeakerOrder returns the distinct speakers of aligned in order of first
// appearance, UnknownSpeaker included.
func SpeakerOrder(aligned []Attribution) []SpeakerID {
	seen := make(map[SpeakerID]bool)
	var order []SpeakerID
	for _, a := range aligned {
		if seen[a.Speaker] {
			continue
		}
		seen[a.Speaker] = true
		order = append(order, a.Speaker)
	}
	return order
}

// AssignRoles labels every aligned segment with a role. The mapping depends
// only on speaker order; rc is attached to each segment as metadata when it
// carries any hint and does not influence the mapping. A nil policy means
// FirstSpeakerExecutive.
func AssignRoles(aligned []Attribution, rc *RoleContext, policy RolePolicy) []AlignedSegment {
	if policy == nil {
		policy = FirstSpeakerExecutive
	}
	roles := policy(SpeakerOrder(aligned))

	var meta *RoleContext
	if !rc.IsZero() {
		c := *rc
		meta = &c
	}

	out := make([]AlignedSegment, len(aligned))
	for i, a := range aligned {
		role, ok := roles[a.Speaker]
		if !ok || a.Speaker == UnknownSpeaker {
			role = RoleUnknown
		}
		out[i] = AlignedSegment{
			Start:            a.Segment.Start,
			End:              a.Segment.End,
			Text:             a.Segment.Text,
			Speaker:          a.Speaker,
			SpeechConfidence: a.Segment.SpeechConfidence,
			Role:             role,
			Context:          meta,
		}
	}
	return out
}
