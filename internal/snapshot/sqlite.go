package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/spigell/property-matcher/internal/estate"
)

// SQLiteSource reads snapshots from a SQLite database.
type SQLiteSource struct {
	db *sql.DB
}

// NewSQLiteSource wraps an already opened database.
func NewSQLiteSource(db *sql.DB) *SQLiteSource {
	return &SQLiteSource{db: db}
}

func OpenSQLite(path string) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewSQLiteSource(db), nil
}

func (s *SQLiteSource) Close() error { return s.db.Close() }

func (s *SQLiteSource) EnsureSchema(ctx context.Context) error {
	statements := []string{`
CREATE TABLE IF NOT EXISTS listings (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL DEFAULT '',
  price REAL NOT NULL,
  listing_type TEXT NOT NULL,
  property_type TEXT NOT NULL DEFAULT '',
  city TEXT NOT NULL DEFAULT '',
  state TEXT NOT NULL DEFAULT '',
  bedrooms INTEGER,
  bathrooms INTEGER,
  area REAL,
  amenities_json TEXT NOT NULL DEFAULT '[]'
);`, `
CREATE TABLE IF NOT EXISTS profiles (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL DEFAULT '',
  listing_type TEXT NOT NULL,
  property_types_json TEXT NOT NULL DEFAULT '[]',
  locations_json TEXT NOT NULL DEFAULT '[]',
  budget_min REAL,
  budget_max REAL,
  bedrooms_min INTEGER,
  bathrooms_min INTEGER,
  area_min REAL,
  amenities_json TEXT NOT NULL DEFAULT '[]'
);`, `
CREATE TABLE IF NOT EXISTS feedback (
  listing_id TEXT NOT NULL,
  profile_id TEXT NOT NULL,
  feedback_type TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_feedback_listing ON feedback(listing_id);`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Save upserts listings and profiles by id and appends feedback records.
func (s *SQLiteSource) Save(ctx context.Context, snap *Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, l := range snap.Listings {
		amenities, err := json.Marshal(orEmpty(l.Amenities))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
INSERT OR REPLACE INTO listings
(id, title, price, listing_type, property_type, city, state, bedrooms, bathrooms, area, amenities_json)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			l.ID, l.Title, l.Price, string(l.ListingType), string(l.PropertyType), l.City, l.State,
			nullInt(l.Bedrooms), nullInt(l.Bathrooms), nullFloat(l.Area), string(amenities),
		); err != nil {
			return fmt.Errorf("save listing %s: %w", l.ID, err)
		}
	}

	for _, p := range snap.Profiles {
		types := make([]string, 0, len(p.PropertyTypes))
		for _, t := range p.PropertyTypes {
			types = append(types, string(t))
		}
		typesJSON, _ := json.Marshal(types)
		locations, _ := json.Marshal(orEmpty(p.Locations))
		amenities, _ := json.Marshal(orEmpty(p.Amenities))

		if _, err := tx.ExecContext(ctx, `
INSERT OR REPLACE INTO profiles
(id, name, listing_type, property_types_json, locations_json, budget_min, budget_max, bedrooms_min, bathrooms_min, area_min, amenities_json)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.Name, string(p.ListingType), string(typesJSON), string(locations),
			nullFloat(p.BudgetMin), nullFloat(p.BudgetMax), nullInt(p.BedroomsMin), nullInt(p.BathroomsMin),
			nullFloat(p.AreaMin), string(amenities),
		); err != nil {
			return fmt.Errorf("save profile %s: %w", p.ID, err)
		}
	}

	for _, f := range snap.Feedback {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO feedback (listing_id, profile_id, feedback_type) VALUES (?, ?, ?)`,
			f.ListingID, f.ProfileID, string(f.Type),
		); err != nil {
			return fmt.Errorf("save feedback for %s: %w", f.ListingID, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteSource) Load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}

	listings, err := s.loadListings(ctx)
	if err != nil {
		return nil, err
	}
	snap.Listings = listings

	profiles, err := s.loadProfiles(ctx)
	if err != nil {
		return nil, err
	}
	snap.Profiles = profiles

	feedback, err := s.loadFeedback(ctx)
	if err != nil {
		return nil, err
	}
	snap.Feedback = feedback

	return snap, nil
}

func (s *SQLiteSource) loadListings(ctx context.Context) ([]estate.Listing, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, title, price, listing_type, property_type, city, state, bedrooms, bathrooms, area, amenities_json
FROM listings ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}
	defer rows.Close()

	out := make([]estate.Listing, 0)
	for rows.Next() {
		var (
			l                   estate.Listing
			listingType, ptype  string
			bedrooms, bathrooms sql.NullInt64
			area                sql.NullFloat64
			amenities           string
		)
		if err := rows.Scan(&l.ID, &l.Title, &l.Price, &listingType, &ptype, &l.City, &l.State,
			&bedrooms, &bathrooms, &area, &amenities); err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		l.ListingType = estate.ListingType(listingType)
		l.PropertyType = estate.PropertyType(ptype)
		l.Bedrooms = intPtr(bedrooms)
		l.Bathrooms = intPtr(bathrooms)
		l.Area = floatPtr(area)
		if l.Amenities, err = decodeList(amenities); err != nil {
			return nil, fmt.Errorf("decode amenities of %s: %w", l.ID, err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *SQLiteSource) loadProfiles(ctx context.Context) ([]estate.RequirementProfile, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, name, listing_type, property_types_json, locations_json, budget_min, budget_max,
       bedrooms_min, bathrooms_min, area_min, amenities_json
FROM profiles ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	out := make([]estate.RequirementProfile, 0)
	for rows.Next() {
		var (
			p                          estate.RequirementProfile
			listingType                string
			typesJSON, locations       string
			amenities                  string
			budgetMin, budgetMax, area sql.NullFloat64
			bedrooms, bathrooms        sql.NullInt64
		)
		if err := rows.Scan(&p.ID, &p.Name, &listingType, &typesJSON, &locations, &budgetMin, &budgetMax,
			&bedrooms, &bathrooms, &area, &amenities); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}

		types, err := decodeList(typesJSON)
		if err != nil {
			return nil, fmt.Errorf("decode property types of %s: %w", p.ID, err)
		}
		for _, t := range types {
			p.PropertyTypes = append(p.PropertyTypes, estate.PropertyType(t))
		}
		if p.Locations, err = decodeList(locations); err != nil {
			return nil, fmt.Errorf("decode locations of %s: %w", p.ID, err)
		}
		if p.Amenities, err = decodeList(amenities); err != nil {
			return nil, fmt.Errorf("decode amenities of %s: %w", p.ID, err)
		}

		p.ListingType = estate.ListingType(listingType)
		p.BudgetMin = floatPtr(budgetMin)
		p.BudgetMax = floatPtr(budgetMax)
		p.BedroomsMin = intPtr(bedrooms)
		p.BathroomsMin = intPtr(bathrooms)
		p.AreaMin = floatPtr(area)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteSource) loadFeedback(ctx context.Context) ([]estate.FeedbackRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT listing_id, profile_id, feedback_type FROM feedback ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("query feedback: %w", err)
	}
	defer rows.Close()

	out := make([]estate.FeedbackRecord, 0)
	for rows.Next() {
		var (
			f  estate.FeedbackRecord
			ft string
		)
		if err := rows.Scan(&f.ListingID, &f.ProfileID, &ft); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		f.Type = estate.FeedbackType(ft)
		out = append(out, f)
	}
	return out, rows.Err()
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	return estate.Int(int(v.Int64))
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return estate.Float(v.Float64)
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// decodeList reads a JSON string array, returning nil for an empty one.
func decodeList(raw string) ([]string, error) {
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}
