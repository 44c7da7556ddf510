// Package snapshot loads the read-only listing, profile and feedback records a run scores.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spigell/property-matcher/internal/estate"
)

var ErrNotFound = errors.New("record not found")

type Snapshot struct {
	Listings []estate.Listing            `json:"listings"`
	Profiles []estate.RequirementProfile `json:"profiles"`
	Feedback []estate.FeedbackRecord     `json:"feedback"`
}

type Source interface {
	Load(ctx context.Context) (*Snapshot, error)
}

func (s *Snapshot) FindProfile(id string) (estate.RequirementProfile, error) {
	for _, p := range s.Profiles {
		if p.ID == id {
			return p, nil
		}
	}
	return estate.RequirementProfile{}, fmt.Errorf("profile %q: %w", id, ErrNotFound)
}

func (s *Snapshot) FindListing(id string) (estate.Listing, error) {
	for _, l := range s.Listings {
		if l.ID == id {
			return l, nil
		}
	}
	return estate.Listing{}, fmt.Errorf("listing %q: %w", id, ErrNotFound)
}

// ListingSet wraps copies of the listings for the filtering steps.
func (s *Snapshot) ListingSet() *estate.Listings {
	items := make([]*estate.Listing, 0, len(s.Listings))
	for i := range s.Listings {
		l := s.Listings[i]
		items = append(items, &l)
	}
	return &estate.Listings{Items: items}
}

// FileSource reads a snapshot from a JSON document.
type FileSource struct {
	Path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

func (f *FileSource) Load(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", f.Path, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", f.Path, err)
	}
	return &snap, nil
}

// WriteFile stores the snapshot as indented JSON.
func WriteFile(path string, snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot %s: %w", path, err)
	}
	return nil
}
