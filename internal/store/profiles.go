package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Profile is one persona record, either a bot xenoprofile or a user-owned
// character. Name and Biography are the required fields; a record missing
// either is treated as malformed by the persona layer.
type Profile struct {
	ID          string
	Name        string
	Surname     string
	EarthAge    int
	Gender      string
	Interests   string
	Likes       string
	Dislikes    string
	ImageURL    string
	Biography   string
	Species     string
	Subspecies  string
	Location    string
	LookingFor  string
	Orientation string
	RedFlags    string
}

const profileColumns = `name, surname, earthage, gender, interests, likes,
	dislikes, image_url, biography, species, subspecies, location,
	lookingfor, orientation, redflags`

func scanProfile(row *sql.Row, p *Profile) error {
	return row.Scan(&p.Name, &p.Surname, &p.EarthAge, &p.Gender, &p.Interests,
		&p.Likes, &p.Dislikes, &p.ImageURL, &p.Biography, &p.Species,
		&p.Subspecies, &p.Location, &p.LookingFor, &p.Orientation, &p.RedFlags)
}

// GetXenoprofile returns the bot persona record, or ErrNotFound.
func (s *Store) GetXenoprofile(ctx context.Context, id string) (*Profile, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("get xenoprofile: empty id")
	}

	p := &Profile{ID: id}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM xenoprofiles WHERE id = ?`, id)
	if err := scanProfile(row, p); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get xenoprofile %q: %w", id, err)
	}
	return p, nil
}

// GetCharacter returns a user's character record, or ErrNotFound.
func (s *Store) GetCharacter(ctx context.Context, userID, characterID string) (*Profile, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(characterID) == "" {
		return nil, fmt.Errorf("get character: empty user or character id")
	}

	p := &Profile{ID: characterID}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM characters WHERE user_id = ? AND id = ?`,
		userID, characterID)
	if err := scanProfile(row, p); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get character %q for user %q: %w", characterID, userID, err)
	}
	return p, nil
}

// PutXenoprofile inserts or replaces a bot persona record.
func (s *Store) PutXenoprofile(ctx context.Context, p *Profile) error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("put xenoprofile: empty id")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO xenoprofiles (id, `+profileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, surname=excluded.surname,
			earthage=excluded.earthage, gender=excluded.gender,
			interests=excluded.interests, likes=excluded.likes,
			dislikes=excluded.dislikes, image_url=excluded.image_url,
			biography=excluded.biography, species=excluded.species,
			subspecies=excluded.subspecies, location=excluded.location,
			lookingfor=excluded.lookingfor, orientation=excluded.orientation,
			redflags=excluded.redflags, updated_at=datetime('now')`,
		p.ID, p.Name, p.Surname, p.EarthAge, p.Gender, p.Interests, p.Likes,
		p.Dislikes, p.ImageURL, p.Biography, p.Species, p.Subspecies,
		p.Location, p.LookingFor, p.Orientation, p.RedFlags)
	if err != nil {
		return fmt.Errorf("put xenoprofile %q: %w", p.ID, err)
	}
	return nil
}

// PutCharacter inserts or replaces a user's character record.
func (s *Store) PutCharacter(ctx context.Context, userID string, p *Profile) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("put character: empty user or character id")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO characters (id, user_id, `+profileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, id) DO UPDATE SET
			name=excluded.name, surname=excluded.surname,
			earthage=excluded.earthage, gender=excluded.gender,
			interests=excluded.interests, likes=excluded.likes,
			dislikes=excluded.dislikes, image_url=excluded.image_url,
			biography=excluded.biography, species=excluded.species,
			subspecies=excluded.subspecies, location=excluded.location,
			lookingfor=excluded.lookingfor, orientation=excluded.orientation,
			redflags=excluded.redflags, updated_at=datetime('now')`,
		p.ID, userID, p.Name, p.Surname, p.EarthAge, p.Gender, p.Interests,
		p.Likes, p.Dislikes, p.ImageURL, p.Biography, p.Species, p.Subspecies,
		p.Location, p.LookingFor, p.Orientation, p.RedFlags)
	if err != nil {
		return fmt.Errorf("put character %q for user %q: %w", p.ID, userID, err)
	}
	return nil
}
