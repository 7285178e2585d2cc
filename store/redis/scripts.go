package redis

import "github.com/redis/go-redis/v9"

// createScript inserts a job and claims its idempotency key.
//
// KEYS: job, idem, idem history, job ids
// ARGV: job id, claim ("1"/"0"), score, field/value pairs...
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 'exists'
end
if ARGV[2] == '1' then
	if not redis.call('SET', KEYS[2], ARGV[1], 'NX') then
		return 'duplicate'
	end
end
redis.call('HSET', KEYS[1], unpack(ARGV, 4))
redis.call('RPUSH', KEYS[3], ARGV[1])
redis.call('ZADD', KEYS[4], ARGV[3], ARGV[1])
return 'ok'
`)

// transitionScript is a compare-and-set on the job status. It releases the
// idempotency key when the new state no longer holds it and optionally
// appends an output in the same script.
//
// KEYS: job, idem, outputs, done output
// ARGV: allowed states (",a,b,"), job id, release ("1"/"0"),
//
//	output blob (may be empty), output done ("1"/"0"), field/value pairs...
var transitionScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'status')
if not cur then
	return 'missing'
end
if not string.find(ARGV[1], ',' .. cur .. ',', 1, true) then
	return 'state'
end
redis.call('HSET', KEYS[1], unpack(ARGV, 6))
if ARGV[3] == '1' and redis.call('GET', KEYS[2]) == ARGV[2] then
	redis.call('DEL', KEYS[2])
end
if ARGV[4] ~= '' then
	redis.call('RPUSH', KEYS[3], ARGV[4])
	if ARGV[5] == '1' then
		redis.call('SET', KEYS[4], ARGV[4])
	end
end
return 'ok'
`)

// abortScript cancels a queued or running job.
//
// KEYS: job, idem
// ARGV: job id, timestamp
var abortScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'status')
if not cur then
	return 'missing'
end
if cur ~= 'queued' and cur ~= 'running' then
	return 'terminal'
end
redis.call('HSET', KEYS[1],
	'status', 'canceled',
	'abort_requested', '1',
	'termination_reason', 'canceled',
	'completed_at', ARGV[2],
	'updated_at', ARGV[2])
if redis.call('GET', KEYS[2]) == ARGV[1] then
	redis.call('DEL', KEYS[2])
end
return 'ok'
`)
