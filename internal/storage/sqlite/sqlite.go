// Package sqlite persists capability records so that peers recognized in
// one session do not need to be re-queried in the next.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jwhitfield/parley/internal/xmpp/caps"
)

type DB struct {
	db *sql.DB
}

// New opens (or creates) the database under dataDir.
func New(dataDir string) (*DB, error) {
	dbPath := filepath.Join(dataDir, "parley.db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &DB{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS capabilities (
			ver TEXT PRIMARY KEY,
			category TEXT,
			type TEXT,
			name TEXT,
			software TEXT,
			software_version TEXT,
			os TEXT,
			os_version TEXT,
			features_json TEXT NOT NULL,
			updated INTEGER NOT NULL
		)`,
	}

	for _, migration := range migrations {
		if _, err := d.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// SaveRecord stores or replaces the capability record for a fingerprint.
func (d *DB) SaveRecord(ver string, rec caps.Record) error {
	features, err := json.Marshal(rec.Features)
	if err != nil {
		return fmt.Errorf("failed to encode features: %w", err)
	}

	_, err = d.db.Exec(`INSERT OR REPLACE INTO capabilities
		(ver, category, type, name, software, software_version, os, os_version, features_json, updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ver, rec.Category, rec.Type, rec.Name,
		rec.Software, rec.SoftwareVersion, rec.OS, rec.OSVersion,
		string(features), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save capability record: %w", err)
	}
	return nil
}

// LoadRecords returns every stored capability record keyed by fingerprint.
func (d *DB) LoadRecords() (map[string]caps.Record, error) {
	rows, err := d.db.Query(`SELECT ver, category, type, name, software,
		software_version, os, os_version, features_json FROM capabilities`)
	if err != nil {
		return nil, fmt.Errorf("failed to query capability records: %w", err)
	}
	defer rows.Close()

	records := make(map[string]caps.Record)
	for rows.Next() {
		var ver, featuresJSON string
		var rec caps.Record
		if err := rows.Scan(&ver, &rec.Category, &rec.Type, &rec.Name,
			&rec.Software, &rec.SoftwareVersion, &rec.OS, &rec.OSVersion,
			&featuresJSON); err != nil {
			return nil, fmt.Errorf("failed to scan capability record: %w", err)
		}
		if err := json.Unmarshal([]byte(featuresJSON), &rec.Features); err != nil {
			continue
		}
		records[ver] = rec
	}

	return records, rows.Err()
}
