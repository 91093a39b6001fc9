package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	ThemeKey     = "aetheris-theme"
	ThemeDark    = "dark"
	ThemeLight   = "light"
	DefaultTheme = ThemeDark
)

var ErrInvalidTheme = errors.New("theme must be \"dark\" or \"light\"")

// Repository persists operator display preferences across restarts.
type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	repo := &Repository{db: db}
	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *Repository) initSchema() error {
	createPreferencesTable := `
    CREATE TABLE IF NOT EXISTS preferences (
        key TEXT PRIMARY KEY,
        value TEXT NOT NULL,
        updated_at TEXT NOT NULL
    );`
	_, err := r.db.Exec(createPreferencesTable)
	return err
}

// GetTheme returns the stored theme, or DefaultTheme when none (or an
// unrecognised value) is stored.
func (r *Repository) GetTheme() (string, error) {
	value, err := r.GetPreference(ThemeKey)
	if err != nil {
		return "", err
	}
	if !ValidTheme(value) {
		return DefaultTheme, nil
	}
	return value, nil
}

func (r *Repository) SetTheme(theme string) error {
	if !ValidTheme(theme) {
		return ErrInvalidTheme
	}
	return r.SetPreference(ThemeKey, theme)
}

func ValidTheme(theme string) bool {
	return theme == ThemeDark || theme == ThemeLight
}

// GetPreference returns "" for a key that was never set.
func (r *Repository) GetPreference(key string) (string, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read preference %q: %w", key, err)
	}
	return value, nil
}

func (r *Repository) SetPreference(key, value string) error {
	query := `INSERT OR REPLACE INTO preferences (key, value, updated_at) VALUES (?, ?, ?)`
	_, err := r.db.Exec(query, key, value, time.Now().UTC().Format(time.RFC3339))
	return err
}

func (r *Repository) Close() {
	r.db.Close()
}
