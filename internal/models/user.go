package models

import "time"

// User represents a user in the database. The credit balance lives here and
// is only ever mutated through conditional debits/credits.
type User struct {
	ID               int64     `db:"id"`
	TelegramID       int64     `db:"telegram_id"`
	TelegramUsername string    `db:"telegram_username"`
	RSSUUID          string    `db:"rss_uuid"`
	Plan             Plan      `db:"plan"`
	Credits          int       `db:"credits"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}
