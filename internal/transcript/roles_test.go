package transcript

import (
	"reflect"
	"testing"
)

func attributions(speakers ...SpeakerID) []Attribution {
	out := make([]Attribution, len(speakers))
	for i, s := range speakers {
		out[i] = Attribution{Segment: Segment{Start: float64(i), End: float64(i + 1)}, Speaker: s}
	}
	return out
}

func roleOf(segments []AlignedSegment) []Role {
	roles := make([]Role, len(segments))
	for i, s := range segments {
		roles[i] = s.Role
	}
	return roles
}

func TestAssignRoles(t *testing.T) {
	tests := []struct {
		name     string
		speakers []SpeakerID
		expected []Role
	}{
		{"one speaker", []SpeakerID{"A", "A"}, []Role{RoleExecutive, RoleExecutive}},
		{"two speakers", []SpeakerID{"A", "B", "A"}, []Role{RoleExecutive, RoleClient, RoleExecutive}},
		{"three speakers", []SpeakerID{"A", "B", "C"}, []Role{RoleExecutive, RoleClient, RoleClient}},
		{"first-seen order not label order", []SpeakerID{"SPEAKER_01", "SPEAKER_00"}, []Role{RoleExecutive, RoleClient}},
		{"leading unknown takes the first slot", []SpeakerID{UnknownSpeaker, "A", "B"}, []Role{RoleUnknown, RoleClient, RoleClient}},
		{"later unknown keeps positions", []SpeakerID{"A", UnknownSpeaker, "B"}, []Role{RoleExecutive, RoleUnknown, RoleClient}},
		{"only unknown", []SpeakerID{UnknownSpeaker, UnknownSpeaker}, []Role{RoleUnknown, RoleUnknown}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := roleOf(AssignRoles(attributions(tt.speakers...), nil, nil))
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Expected roles %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestAssignRoles_ContextDoesNotChangeMapping(t *testing.T) {
	aligned := attributions("B", "A", "C", "A")
	rc := &RoleContext{ClientHint: "42", ExecutiveHint: "user-7"}

	without := AssignRoles(aligned, nil, nil)
	with := AssignRoles(aligned, rc, nil)

	if !reflect.DeepEqual(roleOf(without), roleOf(with)) {
		t.Errorf("Expected identical roles with and without context, got %v vs %v", roleOf(without), roleOf(with))
	}
	for i, s := range with {
		if s.Context == nil || *s.Context != *rc {
			t.Errorf("Expected context metadata on segment %d", i)
		}
	}
	for i, s := range without {
		if s.Context != nil {
			t.Errorf("Expected no context metadata on segment %d", i)
		}
	}
}

func TestAssignRoles_EmptyContextIsNotAttached(t *testing.T) {
	out := AssignRoles(attributions("A"), &RoleContext{}, nil)
	if out[0].Context != nil {
		t.Error("Expected empty context not to be attached")
	}
}

func TestAssignRoles_Empty(t *testing.T) {
	out := AssignRoles(nil, &RoleContext{ClientHint: "1"}, nil)
	if len(out) != 0 {
		t.Errorf("Expected empty output, got %d segments", len(out))
	}
}

func TestAssignRoles_CustomPolicy(t *testing.T) {
	lastIsExecutive := func(order []SpeakerID) map[SpeakerID]Role {
		roles := make(map[SpeakerID]Role)
		for i, s := range order {
			if i == len(order)-1 {
				roles[s] = RoleExecutive
			} else {
				roles[s] = RoleClient
			}
		}
		return roles
	}

	got := roleOf(AssignRoles(attributions("A", "B"), nil, lastIsExecutive))
	expected := []Role{RoleClient, RoleExecutive}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected roles %v, got %v", expected, got)
	}
}

func TestSpeakerOrder(t *testing.T) {
	got := SpeakerOrder(attributions("B", UnknownSpeaker, "A", "B", "C", "A"))
	expected := []SpeakerID{"B", UnknownSpeaker, "A", "C"}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected order %v, got %v", expected, got)
	}
}

func TestAssignRoles_UnalignedLeadingSegment(t *testing.T) {
	segments := []Segment{
		{Start: 0, End: 1, Text: "hola", SpeechConfidence: 0.9},
		{Start: 2, End: 3, Text: "buenos", SpeechConfidence: 0.9},
		{Start: 4, End: 5, Text: "dias", SpeechConfidence: 0.9},
	}
	intervals := []Interval{
		{Start: 2, End: 3, Speaker: "A"},
		{Start: 4, End: 5, Speaker: "B"},
	}

	aligned, err := Align(segments, intervals)
	if err != nil {
		t.Fatalf("Align failed: %v", err)
	}
	got := roleOf(AssignRoles(aligned, nil, nil))
	expected := []Role{RoleUnknown, RoleClient, RoleClient}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected roles %v, got %v", expected, got)
	}
}
