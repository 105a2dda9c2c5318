package redis

import (
	"context"
	"fmt"

	"skillcall/internal/core/domain"

	"github.com/redis/go-redis/v9"
)

const (
	statePrefix    = "skillcall:match:state:"
	queuePrefix    = "skillcall:match:queue:"
	skillSetPrefix = "skillcall:match:skills:"
	presencePrefix = "skillcall:presence:"
)

// matchRoundScript runs one complete matching round in a single round trip:
// pop a candidate per skill in list order, requeue the requester when it pops
// itself, discard stale candidates (state no longer SEARCHING or presence
// gone), claim the first valid pair or enqueue the requester everywhere.
// Server-side execution is what makes two concurrent rounds unable to claim
// the same candidate.
//
// ARGV: userID, then the normalized skill list.
// Returns {candidateID, skill} on match, {} when enqueued.
var matchRoundScript = redis.NewScript(`
local user = ARGV[1]
local statePrefix = "` + statePrefix + `"
local queuePrefix = "` + queuePrefix + `"
local skillsPrefix = "` + skillSetPrefix + `"
local presencePrefix = "` + presencePrefix + `"

local function purge(u)
	local skills = redis.call("SMEMBERS", skillsPrefix .. u)
	for _, s in ipairs(skills) do
		redis.call("LREM", queuePrefix .. s, 0, u)
	end
	redis.call("DEL", skillsPrefix .. u)
end

redis.call("SET", statePrefix .. user, "SEARCHING")

for i = 2, #ARGV do
	local skill = ARGV[i]
	local qkey = queuePrefix .. skill
	local candidate = redis.call("LPOP", qkey)
	if candidate then
		if candidate == user then
			redis.call("RPUSH", qkey, user)
		else
			local st = redis.call("GET", statePrefix .. candidate)
			local online = redis.call("EXISTS", presencePrefix .. candidate)
			if st == "SEARCHING" and online == 1 then
				redis.call("SET", statePrefix .. user, "MATCHED")
				redis.call("SET", statePrefix .. candidate, "MATCHED")
				purge(user)
				purge(candidate)
				return {candidate, skill}
			else
				purge(candidate)
			end
		end
	end
end

for i = 2, #ARGV do
	local skill = ARGV[i]
	if redis.call("SISMEMBER", skillsPrefix .. user, skill) == 0 then
		redis.call("RPUSH", queuePrefix .. skill, user)
		redis.call("SADD", skillsPrefix .. user, skill)
	end
end
return {}
`)

// cancelScript removes the user from every queue and resets state to IDLE.
var cancelScript = redis.NewScript(`
local user = ARGV[1]
local statePrefix = "` + statePrefix + `"
local queuePrefix = "` + queuePrefix + `"
local skillsPrefix = "` + skillSetPrefix + `"

local skills = redis.call("SMEMBERS", skillsPrefix .. user)
for _, s in ipairs(skills) do
	redis.call("LREM", queuePrefix .. s, 0, user)
end
redis.call("DEL", skillsPrefix .. user)
redis.call("SET", statePrefix .. user, "IDLE")
return 1
`)

type MatchRepository struct {
	client *redis.Client
}

func NewMatchRepository(client *redis.Client) *MatchRepository {
	return &MatchRepository{client: client}
}

func (r *MatchRepository) RunMatchRound(ctx context.Context, userID domain.UserID, skills []string) (domain.UserID, string, error) {
	argv := make([]interface{}, 0, len(skills)+1)
	argv = append(argv, string(userID))
	for _, s := range skills {
		argv = append(argv, s)
	}

	res, err := matchRoundScript.Run(ctx, r.client, nil, argv...).Slice()
	if err != nil {
		return "", "", fmt.Errorf("match round failed: %w", err)
	}
	if len(res) < 2 {
		return "", "", nil
	}

	candidate, _ := res[0].(string)
	skill, _ := res[1].(string)
	return domain.UserID(candidate), skill, nil
}

func (r *MatchRepository) CancelMatching(ctx context.Context, userID domain.UserID) error {
	if err := cancelScript.Run(ctx, r.client, nil, string(userID)).Err(); err != nil {
		return fmt.Errorf("cancel matching failed: %w", err)
	}
	return nil
}

func (r *MatchRepository) GetState(ctx context.Context, userID domain.UserID) (domain.MatchState, error) {
	val, err := r.client.Get(ctx, statePrefix+string(userID)).Result()
	if err == redis.Nil {
		return domain.MatchIdle, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get match state: %w", err)
	}
	return domain.MatchState(val), nil
}

func (r *MatchRepository) SetState(ctx context.Context, userID domain.UserID, state domain.MatchState) error {
	if state != domain.MatchSearching {
		// A queue entry must never outlive SEARCHING; the cancel script
		// purges queues before writing the new state.
		if err := cancelScript.Run(ctx, r.client, nil, string(userID)).Err(); err != nil {
			return fmt.Errorf("failed to purge queues: %w", err)
		}
	}
	if err := r.client.Set(ctx, statePrefix+string(userID), string(state), 0).Err(); err != nil {
		return fmt.Errorf("failed to set match state: %w", err)
	}
	return nil
}
