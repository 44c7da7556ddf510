package estate

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"time"
)

// DismissActorUser marks listings dismissed from the interactive menu.
const DismissActorUser = "user"

type DismissedListings struct {
	Items []*DismissedListing
}

type DismissedListing struct {
	ID          string
	Title       string
	City        string
	Actor       string `json:",omitempty"`
	Reason      string `json:",omitempty"`
	DismissedAt time.Time
}

func (v *Listings) ToDismissed(actor, reason string) *DismissedListings {
	dismissed := &DismissedListings{}
	for _, l := range v.Items {
		dismissed.Items = append(dismissed.Items, &DismissedListing{
			ID:          l.ID,
			Title:       l.Title,
			City:        l.City,
			Actor:       actor,
			Reason:      reason,
			DismissedAt: time.Now().UTC(),
		})
	}
	return dismissed
}

// GetDismissedListingsFromFile reads the dismissed file. A missing or empty file yields an empty set.
func GetDismissedListingsFromFile(path string) (*DismissedListings, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &DismissedListings{}, nil
		}
		return nil, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, err
	}

	if stat.Size() == 0 {
		return &DismissedListings{}, nil
	}

	var dismissed DismissedListings
	if err := json.NewDecoder(file).Decode(&dismissed); err != nil {
		return nil, err
	}
	return &dismissed, nil
}

// Append adds entries that are not present yet.
func (v *DismissedListings) Append(s *DismissedListings) {
	known := make(map[string]struct{}, len(v.Items))
	for _, item := range v.Items {
		known[item.ID] = struct{}{}
	}
	for _, item := range s.Items {
		if _, ok := known[item.ID]; ok {
			continue
		}
		known[item.ID] = struct{}{}
		v.Items = append(v.Items, item)
	}
}

func (v *DismissedListings) ListingIDs() []string {
	ids := make([]string, 0, len(v.Items))
	for _, l := range v.Items {
		ids = append(ids, l.ID)
	}
	return ids
}

func (v *DismissedListings) ToFile(path string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
