package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"skillcall/internal/core/domain"

	"github.com/redis/go-redis/v9"
)

const (
	callPrefix     = "skillcall:call:"
	userCallPrefix = "skillcall:user:calls:"
)

// CallStore keeps call records in the shared store so both participants'
// instances observe the same state. Update runs under WATCH so a concurrent
// writer surfaces as domain.ErrVersionConflict instead of a lost update.
type CallStore struct {
	client *redis.Client
}

func NewCallStore(client *redis.Client) *CallStore {
	return &CallStore{client: client}
}

func callKey(id domain.CallID) string {
	return callPrefix + string(id)
}

func userCallsKey(userID domain.UserID) string {
	return userCallPrefix + string(userID)
}

func (s *CallStore) Create(ctx context.Context, call *domain.Call) error {
	data, err := json.Marshal(call)
	if err != nil {
		return fmt.Errorf("failed to marshal call: %w", err)
	}

	ok, err := s.client.SetNX(ctx, callKey(call.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to store call: %w", err)
	}
	if !ok {
		return fmt.Errorf("call already exists: %s", call.ID)
	}

	pipe := s.client.Pipeline()
	pipe.SAdd(ctx, userCallsKey(call.From), string(call.ID))
	pipe.SAdd(ctx, userCallsKey(call.To), string(call.ID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to index call participants: %w", err)
	}
	return nil
}

func (s *CallStore) Get(ctx context.Context, id domain.CallID) (*domain.Call, error) {
	data, err := s.client.Get(ctx, callKey(id)).Result()
	if err == redis.Nil {
		return nil, domain.ErrCallNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get call: %w", err)
	}

	var call domain.Call
	if err := json.Unmarshal([]byte(data), &call); err != nil {
		return nil, fmt.Errorf("failed to unmarshal call: %w", err)
	}
	return &call, nil
}

func (s *CallStore) Update(ctx context.Context, call *domain.Call) error {
	key := callKey(call.ID)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return domain.ErrCallNotFound
		}
		if err != nil {
			return err
		}

		var stored domain.Call
		if err := json.Unmarshal([]byte(data), &stored); err != nil {
			return fmt.Errorf("failed to unmarshal call: %w", err)
		}
		if stored.Version != call.Version {
			return domain.ErrVersionConflict
		}

		updated := *call
		updated.Version++
		payload, err := json.Marshal(&updated)
		if err != nil {
			return fmt.Errorf("failed to marshal call: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		if err == nil {
			call.Version = updated.Version
		}
		return err
	}, key)

	if err == redis.TxFailedErr {
		return domain.ErrVersionConflict
	}
	return err
}

func (s *CallStore) Remove(ctx context.Context, id domain.CallID) error {
	call, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Del(ctx, callKey(id))
	pipe.SRem(ctx, userCallsKey(call.From), string(id))
	pipe.SRem(ctx, userCallsKey(call.To), string(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove call: %w", err)
	}
	return nil
}

func (s *CallStore) ListByUser(ctx context.Context, userID domain.UserID) ([]*domain.Call, error) {
	ids, err := s.client.SMembers(ctx, userCallsKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list user calls: %w", err)
	}

	var out []*domain.Call
	for _, id := range ids {
		call, err := s.Get(ctx, domain.CallID(id))
		if err == domain.ErrCallNotFound {
			// Index entry outlived the record; drop it lazily.
			s.client.SRem(ctx, userCallsKey(userID), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, call)
	}
	return out, nil
}
