package engine

import (
	"slices"

	"github.com/cockroachdb/errors"
)

// Field names a write-once slot of State.
type Field string

const (
	FieldIntent       Field = "intent"
	FieldVideoIDs     Field = "video_ids"
	FieldVideos       Field = "videos"
	FieldChannels     Field = "channels"
	FieldFinalResults Field = "final_results"
)

// State is the record threaded through one pipeline run.
// Every field except Query is written once by its stage and never changed afterwards.
type State struct {
	Query        string    `json:"query"`
	Intent       Intent    `json:"intent"`
	VideoIDs     []string  `json:"video_ids"`
	Videos       []Video   `json:"videos"`
	Channels     []Channel `json:"channels"`
	FinalResults []Result  `json:"final_results"`

	written map[Field]bool
}

// NewState starts a run for query.
func NewState(query string) *State {
	return &State{Query: query, written: make(map[Field]bool, 5)}
}

// Written reports whether f has been committed.
func (s *State) Written(f Field) bool {
	return s.written[f]
}

func (s *State) commit(f Field, apply func()) error {
	if s.written == nil {
		s.written = make(map[Field]bool, 5)
	}
	if s.written[f] {
		return errors.Wrapf(ErrFieldRewritten, "field %s", f)
	}
	apply()
	s.written[f] = true
	return nil
}

func (s *State) SetIntent(in Intent) error {
	return s.commit(FieldIntent, func() { s.Intent = in })
}

func (s *State) SetVideoIDs(ids []string) error {
	return s.commit(FieldVideoIDs, func() { s.VideoIDs = slices.Clone(ids) })
}

func (s *State) SetVideos(v []Video) error {
	return s.commit(FieldVideos, func() { s.Videos = slices.Clone(v) })
}

func (s *State) SetChannels(c []Channel) error {
	return s.commit(FieldChannels, func() { s.Channels = slices.Clone(c) })
}

func (s *State) SetFinalResults(r []Result) error {
	return s.commit(FieldFinalResults, func() { s.FinalResults = slices.Clone(r) })
}
