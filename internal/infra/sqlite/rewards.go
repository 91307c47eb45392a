package sqlite

import (
	"time"

	"github.com/lockup-labs/lockup/internal/domain"
)

// ─── Hourly rewards ─────────────────────────────────────────────────────────

// InsertHourlyReward records one disbursement. The UNIQUE(task_id, hour_count)
// constraint rejects double payment of the same hour.
func (d *DB) InsertHourlyReward(r domain.HourlyReward) error {
	_, err := d.q.Exec(
		`INSERT INTO hourly_rewards (id, task_id, user_id, reward_amount, hour_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.TaskID, r.UserID, r.Amount, r.HourCount, r.CreatedAt.Unix(),
	)
	return err
}

// HourlyRewards returns disbursements for a task in hour order.
func (d *DB) HourlyRewards(taskID string) ([]domain.HourlyReward, error) {
	rows, err := d.q.Query(
		`SELECT id, task_id, user_id, reward_amount, hour_count, created_at
		 FROM hourly_rewards WHERE task_id = ? ORDER BY hour_count`,
		taskID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rewards []domain.HourlyReward
	for rows.Next() {
		var r domain.HourlyReward
		var created int64
		if err := rows.Scan(&r.ID, &r.TaskID, &r.UserID, &r.Amount, &r.HourCount, &created); err != nil {
			return nil, err
		}
		r.CreatedAt = time.Unix(created, 0).UTC()
		rewards = append(rewards, r)
	}
	return rewards, rows.Err()
}

// RewardTotalForTask sums all hourly disbursements for a task.
func (d *DB) RewardTotalForTask(taskID string) (int64, error) {
	var total int64
	err := d.q.QueryRow(
		`SELECT COALESCE(SUM(reward_amount), 0) FROM hourly_rewards WHERE task_id = ?`,
		taskID,
	).Scan(&total)
	return total, err
}
