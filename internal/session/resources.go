package session

import "context"

// ResourceKind identifies the type of an allocated external resource.
type ResourceKind string

const (
	KindVideoDevice   ResourceKind = "virtual_video_device"
	KindAudioSink     ResourceKind = "virtual_audio_sink"
	KindAudioLoopback ResourceKind = "virtual_audio_loopback"
	KindMirrorProcess ResourceKind = "mirror_process"
)

// Resource is one allocated external resource: what it is, the external
// identifier the provisioning call returned (device path, pactl module
// index, process id), and the action that releases it.
type Resource struct {
	Kind    ResourceKind
	Handle  string
	Release func(ctx context.Context) error
}

// Stack is the ordered record of currently-held resources. It is append-only
// during acquisition and consumed last-in-first-out during teardown, so
// releases always run in the dependency-safe direction (the process holding
// the device stops before the device goes away).
//
// The stack is owned by a single Manager for the duration of one run and is
// not safe for concurrent use.
type Stack struct {
	entries []Resource
}

// Push records a successfully created resource.
func (s *Stack) Push(r Resource) {
	s.entries = append(s.entries, r)
}

// Pop removes and returns the most recently acquired resource.
func (s *Stack) Pop() (Resource, bool) {
	if len(s.entries) == 0 {
		return Resource{}, false
	}
	r := s.entries[len(s.entries)-1]
	s.entries = s.entries[:len(s.entries)-1]
	return r, true
}

// Len returns the number of held resources.
func (s *Stack) Len() int {
	return len(s.entries)
}

// Kinds returns the kinds of held resources in acquisition order.
func (s *Stack) Kinds() []ResourceKind {
	kinds := make([]ResourceKind, len(s.entries))
	for i, r := range s.entries {
		kinds[i] = r.Kind
	}
	return kinds
}
