// Package redisjob implements the job record transitions on Redis.
// Every transition that must be atomic is a single Lua script so that
// concurrent dispatchers sharing one Redis never observe a half-applied state.
package redisjob

import (
	"context"
	"strconv"

	"github.com/UniQw/jobq/internal/keys"
	"github.com/redis/go-redis/v9"
)

// Stored state names. They mirror the public jobq.State values.
const (
	StatePending    = "pending"
	StateProcessing = "processing"
	StateCompleted  = "completed"
	StateDead       = "dead"
)

// promoteBatch is the chunk size used when a claim moves due ids from the
// scheduled ZSET into the ready ZSET. Every due id is moved before popping.
const promoteBatch = 256

// Record is the flat representation of a job HASH. Times are unix ms.
type Record struct {
	ID         string
	Command    string
	State      string
	Attempts   int
	MaxRetries int
	LastError  string
	Output     string
	NextRunAt  int64
	CreatedAt  int64
	UpdatedAt  int64
}

// createScript inserts a job HASH and indexes it as pending.
// Returns 0 when the id already exists.
var createScript = redis.NewScript(
	// language=Lua
	`
	local key = ARGV[1]
	if redis.call('EXISTS', key) == 1 then return 0 end
	redis.call('HSET', key,
		'id', ARGV[2], 'command', ARGV[3], 'state', 'pending',
		'attempts', '0', 'max_retries', ARGV[4],
		'last_error', '', 'output', '',
		'next_run_at', ARGV[5], 'created_at', ARGV[6], 'updated_at', ARGV[6])
	redis.call('ZADD', KEYS[1], ARGV[6], ARGV[2])
	redis.call('ZADD', KEYS[2], ARGV[5], ARGV[2])
	return 1
	`,
)

// claimScript promotes all due ids from scheduled (score next_run_at) to ready
// (score created_at), then pops the oldest ready id and marks it processing.
// Returns the HGETALL of the claimed job, or false when nothing is eligible.
var claimScript = redis.NewScript(
	// language=Lua
	`
	local now = ARGV[1]
	local prefix = ARGV[2]
	local batch = tonumber(ARGV[3])
	while true do
		local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', now, 'LIMIT', 0, batch)
		for _, id in ipairs(due) do
			redis.call('ZREM', KEYS[1], id)
			local created = redis.call('HGET', prefix .. id, 'created_at')
			if created then
				redis.call('ZADD', KEYS[2], created, id)
			end
		end
		if #due < batch then break end
	end
	while true do
		local head = redis.call('ZRANGE', KEYS[2], 0, 0)
		if #head == 0 then return false end
		local id = head[1]
		redis.call('ZREM', KEYS[2], id)
		local key = prefix .. id
		if redis.call('HGET', key, 'state') == 'pending' then
			local created = redis.call('HGET', key, 'created_at')
			redis.call('HSET', key, 'state', 'processing', 'updated_at', now)
			redis.call('ZREM', KEYS[3], id)
			redis.call('ZADD', KEYS[4], created, id)
			redis.call('ZADD', KEYS[5], now, id)
			return redis.call('HGETALL', key)
		end
	end
	`,
)

// finishScript applies the per-attempt outcome of a processing job.
// ARGV[3] is one of completed, retry, dead. Returns 0 if the job is not processing.
var finishScript = redis.NewScript(
	// language=Lua
	`
	local key = ARGV[1]
	local id = ARGV[2]
	local kind = ARGV[3]
	local now = ARGV[8]
	if redis.call('HGET', key, 'state') ~= 'processing' then return 0 end
	local created = redis.call('HGET', key, 'created_at')
	redis.call('ZREM', KEYS[1], id)
	redis.call('ZREM', KEYS[2], id)
	if kind == 'completed' then
		redis.call('HSET', key, 'state', 'completed', 'attempts', ARGV[4], 'output', ARGV[7], 'updated_at', now)
		redis.call('ZADD', KEYS[5], created, id)
	elseif kind == 'retry' then
		redis.call('HSET', key, 'state', 'pending', 'attempts', ARGV[4], 'last_error', ARGV[5],
			'next_run_at', ARGV[6], 'updated_at', now)
		redis.call('ZADD', KEYS[4], created, id)
		redis.call('ZADD', KEYS[3], ARGV[6], id)
	else
		redis.call('HSET', key, 'state', 'dead', 'attempts', ARGV[4], 'last_error', ARGV[5], 'updated_at', now)
		redis.call('ZADD', KEYS[6], created, id)
	end
	return 1
	`,
)

// resetScript moves a dead job back to pending with a fresh retry budget.
// Returns -1 when the job does not exist and 0 when it is not dead.
var resetScript = redis.NewScript(
	// language=Lua
	`
	local key = ARGV[1]
	local id = ARGV[2]
	local now = ARGV[3]
	local state = redis.call('HGET', key, 'state')
	if not state then return -1 end
	if state ~= 'dead' then return 0 end
	local created = redis.call('HGET', key, 'created_at')
	redis.call('HSET', key, 'state', 'pending', 'attempts', '0', 'last_error', '',
		'next_run_at', now, 'updated_at', now)
	redis.call('ZREM', KEYS[1], id)
	redis.call('ZADD', KEYS[2], created, id)
	redis.call('ZADD', KEYS[3], now, id)
	return 1
	`,
)

// reclaimScript returns processing jobs claimed before the cutoff to pending.
// Attempts are not incremented here.
var reclaimScript = redis.NewScript(
	// language=Lua
	`
	local cutoff = ARGV[1]
	local prefix = ARGV[2]
	local now = ARGV[3]
	local items = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', cutoff, 'LIMIT', 0, tonumber(ARGV[4]))
	local n = 0
	for _, id in ipairs(items) do
		redis.call('ZREM', KEYS[1], id)
		local key = prefix .. id
		if redis.call('HGET', key, 'state') == 'processing' then
			local created = redis.call('HGET', key, 'created_at')
			redis.call('HSET', key, 'state', 'pending', 'next_run_at', now, 'updated_at', now)
			redis.call('ZREM', KEYS[2], id)
			redis.call('ZADD', KEYS[3], created, id)
			redis.call('ZADD', KEYS[4], now, id)
			n = n + 1
		end
	end
	return n
	`,
)

// Create stores a new pending job. It reports false if the id is taken.
func Create(ctx context.Context, rdb redis.UniversalClient, k keys.Namespace, r *Record) (bool, error) {
	n, err := createScript.Run(ctx, rdb, []string{k.Pending, k.Scheduled},
		k.Job(r.ID), r.ID, r.Command, strconv.Itoa(r.MaxRetries),
		ms(r.NextRunAt), ms(r.CreatedAt),
	).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Claim atomically takes the oldest eligible pending job and marks it processing.
// It returns nil, nil when no job is eligible at nowMs.
func Claim(ctx context.Context, rdb redis.UniversalClient, k keys.Namespace, nowMs int64) (*Record, error) {
	res, err := claimScript.Run(ctx, rdb,
		[]string{k.Scheduled, k.Ready, k.Pending, k.Processing, k.Active},
		ms(nowMs), k.JobPrefix, strconv.Itoa(promoteBatch),
	).Slice()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return fromFlat(res), nil
}

func finish(ctx context.Context, rdb redis.UniversalClient, k keys.Namespace, id, kind string, attempts int, lastErr string, nextMs int64, output string, nowMs int64) (bool, error) {
	n, err := finishScript.Run(ctx, rdb,
		[]string{k.Processing, k.Active, k.Scheduled, k.Pending, k.Completed, k.Dead},
		k.Job(id), id, kind, strconv.Itoa(attempts), lastErr, ms(nextMs), output, ms(nowMs),
	).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Complete marks a processing job completed.
func Complete(ctx context.Context, rdb redis.UniversalClient, k keys.Namespace, id string, attempts int, output string, nowMs int64) (bool, error) {
	return finish(ctx, rdb, k, id, "completed", attempts, "", 0, output, nowMs)
}

// RetryLater reschedules a processing job to become eligible at nextMs.
func RetryLater(ctx context.Context, rdb redis.UniversalClient, k keys.Namespace, id string, attempts int, lastErr string, nextMs, nowMs int64) (bool, error) {
	return finish(ctx, rdb, k, id, "retry", attempts, lastErr, nextMs, "", nowMs)
}

// Bury moves a processing job to the dead state.
func Bury(ctx context.Context, rdb redis.UniversalClient, k keys.Namespace, id string, attempts int, lastErr string, nowMs int64) (bool, error) {
	return finish(ctx, rdb, k, id, "dead", attempts, lastErr, 0, "", nowMs)
}

// Reset returns 1 when a dead job was moved to pending, 0 when the job is
// not dead, and -1 when it does not exist.
func Reset(ctx context.Context, rdb redis.UniversalClient, k keys.Namespace, id string, nowMs int64) (int64, error) {
	return resetScript.Run(ctx, rdb, []string{k.Dead, k.Pending, k.Scheduled}, k.Job(id), id, ms(nowMs)).Int64()
}

// Reclaim moves up to batch processing jobs claimed at or before cutoffMs back to pending.
func Reclaim(ctx context.Context, rdb redis.UniversalClient, k keys.Namespace, cutoffMs, nowMs int64, batch int) (int, error) {
	n, err := reclaimScript.Run(ctx, rdb,
		[]string{k.Active, k.Processing, k.Pending, k.Scheduled},
		ms(cutoffMs), k.JobPrefix, ms(nowMs), strconv.Itoa(batch),
	).Int64()
	return int(n), err
}

// Get loads a single job. It returns nil, nil if the job does not exist.
func Get(ctx context.Context, rdb redis.UniversalClient, k keys.Namespace, id string) (*Record, error) {
	m, err := rdb.HGetAll(ctx, k.Job(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, nil
	}
	return fromMap(m), nil
}

// List returns the jobs indexed under state, newest first.
func List(ctx context.Context, rdb redis.UniversalClient, k keys.Namespace, state string) ([]*Record, error) {
	ids, err := rdb.ZRevRange(ctx, k.Index(state), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.HGetAll(ctx, k.Job(id))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]*Record, 0, len(ids))
	for _, c := range cmds {
		m := c.Val()
		// index entries can briefly outlive a concurrent transition
		if len(m) == 0 || m["state"] != state {
			continue
		}
		out = append(out, fromMap(m))
	}
	return out, nil
}

// Count returns the size of each state index.
func Count(ctx context.Context, rdb redis.UniversalClient, k keys.Namespace, states []string) (map[string]int64, error) {
	cmds := make([]*redis.IntCmd, len(states))
	_, err := rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, s := range states {
			cmds[i] = p.ZCard(ctx, k.Index(s))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(states))
	for i, s := range states {
		out[s] = cmds[i].Val()
	}
	return out, nil
}

func fromFlat(vals []any) *Record {
	m := make(map[string]string, len(vals)/2)
	for i := 0; i+1 < len(vals); i += 2 {
		k, _ := vals[i].(string)
		v, _ := vals[i+1].(string)
		m[k] = v
	}
	return fromMap(m)
}

func fromMap(m map[string]string) *Record {
	return &Record{
		ID:         m["id"],
		Command:    m["command"],
		State:      m["state"],
		Attempts:   atoi(m["attempts"]),
		MaxRetries: atoi(m["max_retries"]),
		LastError:  m["last_error"],
		Output:     m["output"],
		NextRunAt:  atoi64(m["next_run_at"]),
		CreatedAt:  atoi64(m["created_at"]),
		UpdatedAt:  atoi64(m["updated_at"]),
	}
}

func ms(v int64) string { return strconv.FormatInt(v, 10) }

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func atoi64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
