package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database with methods for twins and conversation turns.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "twin.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// --- Twins ---

// CreateTwin inserts a new twin record.
func (s *Store) CreateTwin(t Twin) error {
	_, err := s.db.Exec(`
		INSERT INTO twins (id, name, bio, letterboxd_url, spotify_refresh_token, persona_json, sources_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Bio, t.LetterboxdURL, t.SpotifyRefreshToken,
		t.PersonaJSON, t.SourcesJSON,
		t.CreatedAt.UTC().Format(time.RFC3339), t.UpdatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// GetTwin returns the twin with the given id, or ErrNotFound.
func (s *Store) GetTwin(id string) (Twin, error) {
	var t Twin
	var createdAt, updatedAt string
	err := s.db.QueryRow(`
		SELECT id, name, bio, letterboxd_url, spotify_refresh_token, persona_json, sources_json, created_at, updated_at
		FROM twins WHERE id = ?`, id,
	).Scan(&t.ID, &t.Name, &t.Bio, &t.LetterboxdURL, &t.SpotifyRefreshToken, &t.PersonaJSON, &t.SourcesJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return Twin{}, ErrNotFound
	}
	if err != nil {
		return Twin{}, err
	}
	if t.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Twin{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if t.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Twin{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return t, nil
}

// ListTwins returns all twins, newest first.
func (s *Store) ListTwins() ([]Twin, error) {
	rows, err := s.db.Query(`
		SELECT id, name, bio, letterboxd_url, spotify_refresh_token, persona_json, sources_json, created_at, updated_at
		FROM twins ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var twins []Twin
	for rows.Next() {
		var t Twin
		var createdAt, updatedAt string
		if err := rows.Scan(&t.ID, &t.Name, &t.Bio, &t.LetterboxdURL, &t.SpotifyRefreshToken, &t.PersonaJSON, &t.SourcesJSON, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if t.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if t.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		twins = append(twins, t)
	}
	return twins, rows.Err()
}

// UpdateTwinProfile updates the twin's bio and Letterboxd URL.
func (s *Store) UpdateTwinProfile(id, bio, letterboxdURL string) error {
	res, err := s.db.Exec(`
		UPDATE twins SET bio = ?, letterboxd_url = ?, updated_at = ? WHERE id = ?`,
		bio, letterboxdURL, time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SetSpotifyRefreshToken stores the refresh token obtained from the OAuth exchange.
func (s *Store) SetSpotifyRefreshToken(id, token string) error {
	res, err := s.db.Exec(`
		UPDATE twins SET spotify_refresh_token = ?, updated_at = ? WHERE id = ?`,
		token, time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SetPersona replaces the twin's persona and profile sources in one write.
// The pair is always written together so a persisted persona can never be
// read alongside the sources of an older synthesis.
func (s *Store) SetPersona(id, personaJSON, sourcesJSON string) error {
	res, err := s.db.Exec(`
		UPDATE twins SET persona_json = ?, sources_json = ?, updated_at = ? WHERE id = ?`,
		personaJSON, sourcesJSON, time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Turns ---

// AppendTurn appends a turn to the twin's conversation log and returns it
// with the assigned sequence number. Turns are never updated or deleted.
func (s *Store) AppendTurn(twinID, speaker, text string) (Turn, error) {
	createdAt := time.Now().UTC()
	res, err := s.db.Exec(`
		INSERT INTO turns (twin_id, speaker, text, created_at) VALUES (?, ?, ?, ?)`,
		twinID, speaker, text, createdAt.Format(time.RFC3339),
	)
	if err != nil {
		return Turn{}, err
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return Turn{}, err
	}
	return Turn{Seq: seq, TwinID: twinID, Speaker: speaker, Text: text, CreatedAt: createdAt}, nil
}

// RecentTurns returns the most recent n turns for the twin in creation
// order (oldest of the selected window first).
func (s *Store) RecentTurns(twinID string, n int) ([]Turn, error) {
	rows, err := s.db.Query(`
		SELECT seq, twin_id, speaker, text, created_at FROM (
			SELECT seq, twin_id, speaker, text, created_at
			FROM turns WHERE twin_id = ? ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC`, twinID, n)
	if err != nil {
		return nil, err
	}
	return scanTurns(rows)
}

// ListTurns returns all turns for the twin in creation order.
func (s *Store) ListTurns(twinID string) ([]Turn, error) {
	rows, err := s.db.Query(`
		SELECT seq, twin_id, speaker, text, created_at
		FROM turns WHERE twin_id = ? ORDER BY seq ASC`, twinID)
	if err != nil {
		return nil, err
	}
	return scanTurns(rows)
}

func scanTurns(rows *sql.Rows) ([]Turn, error) {
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		var createdAt string
		if err := rows.Scan(&t.Seq, &t.TwinID, &t.Speaker, &t.Text, &createdAt); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		t.CreatedAt = parsed
		turns = append(turns, t)
	}
	return turns, rows.Err()
}
