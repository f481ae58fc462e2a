package db

import "fmt"

// ClaimUpdate records updateID as the newest update seen from a platform user.
// It returns false when an update with the same or a higher id was already
// claimed, which marks the delivery as a duplicate or a stale replay.
func (db *DB) ClaimUpdate(platformUserID int64, updateID int) (bool, error) {
	res, err := db.conn.Exec(`
		INSERT INTO update_marks (platform_user_id, last_update_id, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (platform_user_id) DO UPDATE SET
			last_update_id = excluded.last_update_id,
			updated_at = CURRENT_TIMESTAMP
		WHERE excluded.last_update_id > update_marks.last_update_id
	`, platformUserID, updateID)
	if err != nil {
		return false, fmt.Errorf("claim update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
