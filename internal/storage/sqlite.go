package storage

import "database/sql"

// SQLite persists keys in the workspace database's kv table.
type SQLite struct {
	DB *sql.DB
}

func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{DB: db}
}

func (s *SQLite) Get(key string) (string, bool, error) {
	var value string
	err := s.DB.QueryRow(`SELECT value FROM kv WHERE key=?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *SQLite) Set(key, value string) error {
	_, err := s.DB.Exec(`INSERT INTO kv(key,value) VALUES (?,?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, value)
	return err
}

func (s *SQLite) Delete(key string) error {
	_, err := s.DB.Exec(`DELETE FROM kv WHERE key=?`, key)
	return err
}
