package sqlitestore

const jobColumns = `id, command, state, attempts, max_retries, last_error, output, next_run_at, created_at, updated_at`

const (
	insertJob = `INSERT INTO jobs (id, command, state, attempts, max_retries, last_error, output, next_run_at, created_at, updated_at)
		VALUES (?, ?, 'pending', 0, ?, '', '', ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`

	// claimNext selects and flips one row in a single statement, so two
	// connections can never both see the row as pending.
	claimNext = `UPDATE jobs SET state = 'processing', updated_at = ?
		WHERE id = (
			SELECT id FROM jobs
			WHERE state = 'pending' AND next_run_at <= ?
			ORDER BY created_at ASC, rowid ASC
			LIMIT 1
		) AND state = 'pending'
		RETURNING ` + jobColumns

	completeJob = `UPDATE jobs SET state = 'completed', attempts = ?, output = ?, updated_at = ?
		WHERE id = ? AND state = 'processing'`

	retryJob = `UPDATE jobs SET state = 'pending', attempts = ?, last_error = ?, next_run_at = ?, updated_at = ?
		WHERE id = ? AND state = 'processing'`

	buryJob = `UPDATE jobs SET state = 'dead', attempts = ?, last_error = ?, updated_at = ?
		WHERE id = ? AND state = 'processing'`

	resetJob = `UPDATE jobs SET state = 'pending', attempts = 0, last_error = '', next_run_at = ?, updated_at = ?
		WHERE id = ? AND state = 'dead'`

	reclaimJobs = `UPDATE jobs SET state = 'pending', next_run_at = ?, updated_at = ?
		WHERE state = 'processing' AND updated_at <= ?`

	getJob = `SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`

	jobExists = `SELECT 1 FROM jobs WHERE id = ?`

	listByState = `SELECT ` + jobColumns + ` FROM jobs WHERE state = ? ORDER BY created_at DESC, rowid DESC`

	countByState = `SELECT state, COUNT(*) FROM jobs GROUP BY state`
)
