package db

import (
	"database/sql"
	"errors"

	"github.com/rs/zerolog/log"

	"podforge/internal/models"
)

// DefaultSignupCredits is the balance granted to a newly created user.
const DefaultSignupCredits = 30

// UpsertUser inserts a new user or updates an existing one based on the
// Telegram ID. New users start on the personal plan with the signup balance.
func UpsertUser(telegramID int64, username string) (*models.User, error) {
	query := `
		INSERT INTO users (telegram_id, telegram_username, plan, credits)
		VALUES ($1, $2, 'personal', $3)
		ON CONFLICT (telegram_id) DO UPDATE SET
			telegram_username = EXCLUDED.telegram_username,
			updated_at = NOW()
		RETURNING id, telegram_id, telegram_username, rss_uuid, plan, credits, created_at, updated_at
	`
	user := &models.User{}
	err := DB.Get(user, query, telegramID, username, DefaultSignupCredits)
	if err != nil {
		log.Error().Err(err).Int64("telegram_id", telegramID).Msg("failed to upsert user")
		return nil, err
	}
	return user, nil
}

func GetUserByID(id int64) (*models.User, error) {
	user := &models.User{}
	err := DB.Get(user, "SELECT * FROM users WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	return user, err
}

func GetUserByRSSUUID(uuid string) (*models.User, error) {
	user := &models.User{}
	err := DB.Get(user, "SELECT * FROM users WHERE rss_uuid = $1", uuid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	return user, err
}

// DebitCredits atomically reserves amount credits from the user's balance.
// The conditional UPDATE is the whole reservation: the balance only moves
// when it covers the full amount, so no interleaving of concurrent debits
// can drive it negative or apply a partial debit.
func DebitCredits(userID int64, amount int) error {
	if amount <= 0 {
		return errors.New("debit amount must be positive")
	}
	res, err := DB.Exec(
		"UPDATE users SET credits = credits - $1, updated_at = NOW() WHERE id = $2 AND credits >= $1",
		amount, userID,
	)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		var balance int
		err := DB.Get(&balance, "SELECT credits FROM users WHERE id = $1", userID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}
		return ErrInsufficientCredits
	}
	return nil
}

// RefundCredits returns amount credits to the user's balance.
func RefundCredits(userID int64, amount int) error {
	if amount <= 0 {
		return errors.New("refund amount must be positive")
	}
	res, err := DB.Exec(
		"UPDATE users SET credits = credits + $1, updated_at = NOW() WHERE id = $2",
		amount, userID,
	)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}
