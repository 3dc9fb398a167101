package config

import (
	"github.com/moby/patternmatcher"

	"github.com/quarterdeck/core/errors"
)

// SessionFilter decides which sessions the engine tracks, using
// docker-ignore style glob patterns (with ! negation) matched against
// a session's id and model.
type SessionFilter struct {
	include *patternmatcher.PatternMatcher
	exclude *patternmatcher.PatternMatcher
}

// NewSessionFilter compiles the include/exclude pattern lists. Empty
// include means every session passes the include stage.
func NewSessionFilter(include, exclude []string) (*SessionFilter, error) {
	f := &SessionFilter{}

	if len(include) > 0 {
		pm, err := patternmatcher.New(include)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "invalid session include pattern")
		}
		f.include = pm
	}
	if len(exclude) > 0 {
		pm, err := patternmatcher.New(exclude)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "invalid session exclude pattern")
		}
		f.exclude = pm
	}
	return f, nil
}

// Filter builds the filter from the config's sessions section. A nil
// receiver or empty section yields a nil filter, meaning no filtering.
func (c *Config) Filter() (*SessionFilter, error) {
	if c.Sessions == nil || (len(c.Sessions.Include) == 0 && len(c.Sessions.Exclude) == 0) {
		return nil, nil
	}
	return NewSessionFilter(c.Sessions.Include, c.Sessions.Exclude)
}

// Match reports whether a session with the given id and model should
// be tracked. Malformed runtime matches count as non-matches.
func (f *SessionFilter) Match(id, model string) bool {
	if f == nil {
		return true
	}

	if f.include != nil {
		inID, _ := f.include.MatchesOrParentMatches(id)
		inModel, _ := f.include.MatchesOrParentMatches(model)
		if !inID && !inModel {
			return false
		}
	}
	if f.exclude != nil {
		exID, _ := f.exclude.MatchesOrParentMatches(id)
		exModel, _ := f.exclude.MatchesOrParentMatches(model)
		if exID || exModel {
			return false
		}
	}
	return true
}
