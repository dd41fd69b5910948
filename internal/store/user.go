package store

import (
	"database/sql"
	"time"
)

// UpsertUser inserts or updates a user profile record.
func (db *DB) UpsertUser(u *User) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO users (id, email, first_name, last_name, username, profile_image, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			username = excluded.username,
			profile_image = excluded.profile_image,
			updated_at = excluded.updated_at`,
		u.ID, u.Email, u.FirstName, u.LastName, u.Username, u.ProfileImage, now, now)
	return err
}

// GetUser returns a single user by ID, or nil if absent.
func (db *DB) GetUser(id string) (*User, error) {
	var u User
	err := db.QueryRow(`
		SELECT id, email, first_name, last_name, username, profile_image, created_at, updated_at
		FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Username, &u.ProfileImage, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUsersExcept returns every user except the given one, ordered by
// first name then email (the ordering the chat directory displays).
func (db *DB) ListUsersExcept(id string) ([]User, error) {
	rows, err := db.Query(`
		SELECT id, email, first_name, last_name, username, profile_image, created_at, updated_at
		FROM users
		WHERE id != ?
		ORDER BY first_name, email`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Username, &u.ProfileImage, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UserCount returns the number of user records.
func (db *DB) UserCount() (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}
