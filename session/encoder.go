package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// TokenKey addresses the raw bearer token entry.
	TokenKey = "token"
	// UserKey addresses the JSON user profile entry.
	UserKey = "user"
)

var (
	// ErrNoSession is returned by [Decode] when neither entry is present.
	ErrNoSession = errors.New("no persisted session")
	// ErrPartialSession is returned by [Decode] when exactly one entry is present.
	ErrPartialSession = errors.New("partial persisted session")
	// ErrCorruptSession is returned by [Decode] when the user entry cannot be parsed
	// or carries no user id.
	ErrCorruptSession = errors.New("corrupt persisted session")
)

// Record is the persisted form of a session: two independently addressable
// entries. An empty field means the entry is missing.
type Record struct {
	Token string
	User  string
}

// Empty reports whether both entries are missing.
func (r Record) Empty() bool {
	return r.Token == "" && r.User == ""
}

// Encode converts s into its persisted form.
func Encode(s *Session) (Record, error) {
	if s == nil || s.Token == "" {
		return Record{}, errors.New("session token empty")
	}
	data, err := json.Marshal(s.User)
	if err != nil {
		return Record{}, fmt.Errorf("encode user: %w", err)
	}
	return Record{Token: s.Token, User: string(data)}, nil
}

// Decode rebuilds a session from its persisted form. It fails closed: any missing
// or unparsable half yields an error and no session.
func Decode(rec Record) (*Session, error) {
	switch {
	case rec.Empty():
		return nil, ErrNoSession
	case rec.Token == "" || rec.User == "":
		return nil, ErrPartialSession
	}

	raw := bytes.TrimSpace([]byte(rec.User))
	if len(raw) == 0 || raw[0] != '{' {
		return nil, ErrCorruptSession
	}

	var user User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSession, err)
	}
	if user.ID == 0 {
		return nil, fmt.Errorf("%w: user id missing", ErrCorruptSession)
	}

	return &Session{Token: rec.Token, User: user}, nil
}
