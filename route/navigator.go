package route

import "sync"

// Reason labels why a navigation intent was emitted.
type Reason string

const (
	ReasonUnauthenticated Reason = "unauthenticated"
	ReasonForbidden       Reason = "forbidden"
	ReasonSessionExpired  Reason = "session_expired"
	ReasonLanding         Reason = "landing"
)

// Intent asks the host to move to Path. Replace means the current history entry
// is replaced rather than pushed.
type Intent struct {
	Path    string
	Replace bool
	Reason  Reason
}

// Navigator receives navigation intents.
type Navigator interface {
	Navigate(Intent)
}

// NavigatorFunc adapts a function to [Navigator].
type NavigatorFunc func(Intent)

func (f NavigatorFunc) Navigate(in Intent) { f(in) }

// Location reports the route currently shown to the user.
type Location interface {
	CurrentPath() string
}

// LocationFunc adapts a function to [Location].
type LocationFunc func() string

func (f LocationFunc) CurrentPath() string { return f() }

// Recorder is a [Navigator] and [Location] that keeps every intent in memory and
// moves its current path accordingly. It is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	path    string
	intents []Intent
}

// NewRecorder returns a Recorder positioned at path.
func NewRecorder(path string) *Recorder {
	return &Recorder{path: Clean(path)}
}

func (r *Recorder) Navigate(in Intent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intents = append(r.intents, in)
	r.path = Clean(in.Path)
}

func (r *Recorder) CurrentPath() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

// Visit moves the current path without recording an intent, as a user
// following a link would.
func (r *Recorder) Visit(path string) {
	r.mu.Lock()
	r.path = Clean(path)
	r.mu.Unlock()
}

// Intents returns a copy of the recorded intents in emission order.
func (r *Recorder) Intents() []Intent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Intent, len(r.intents))
	copy(out, r.intents)
	return out
}

// Last returns the most recent intent.
func (r *Recorder) Last() (Intent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.intents) == 0 {
		return Intent{}, false
	}
	return r.intents[len(r.intents)-1], true
}
