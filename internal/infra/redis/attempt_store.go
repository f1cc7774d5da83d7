package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"quiz-grading-engine/internal/domain"

	"github.com/redis/go-redis/v9"
)

// AttemptStore keeps attempts in Redis.
//
//	attempt:{id}                   JSON document
//	attempts:{participant}:{ver}   ZSET of attempt ids scored by start time
//	attempts:{participant}:{ver}:open  id of the open attempt (SETNX slot)
//	attempts:{participant}:{ver}:last  last assigned attempt number
//	attempts:open                  SET of open attempt ids
//
// Sealing runs under WATCH so a concurrent seal aborts with a number conflict.
type AttemptStore struct {
	client *redis.Client
}

const draftRetries = 3

func NewAttemptStore(client *redis.Client) *AttemptStore {
	return &AttemptStore{client: client}
}

// Prior reads the open slot and the last number in one MULTI before loading the history. A
// seal clears the slot and bumps the number atomically, so an empty slot here means every
// earlier seal is already visible in the history.
func (s *AttemptStore) Prior(ctx context.Context, participantID, quizVersionID string) (domain.PriorAttempts, error) {
	var openCmd, lastCmd *redis.StringCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		openCmd = pipe.Get(ctx, openKey(participantID, quizVersionID))
		lastCmd = pipe.Get(ctx, lastKey(participantID, quizVersionID))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.PriorAttempts{}, fmt.Errorf("read attempt slot: %w", err)
	}

	var prior domain.PriorAttempts
	prior.OpenAttemptID, err = openCmd.Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.PriorAttempts{}, fmt.Errorf("read open slot: %w", err)
	}
	prior.LastNumber, err = lastCmd.Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.PriorAttempts{}, fmt.Errorf("read last attempt number: %w", err)
	}

	attempts, err := s.history(ctx, participantID, quizVersionID)
	if err != nil {
		return domain.PriorAttempts{}, err
	}
	for _, a := range attempts {
		if a.Completed() {
			prior.Completed++
		}
	}
	return prior, nil
}

func (s *AttemptStore) Open(ctx context.Context, attempt domain.Attempt) error {
	payload, err := json.Marshal(attempt)
	if err != nil {
		return err
	}
	slot := openKey(attempt.ParticipantID, attempt.QuizVersionID)
	ok, err := s.client.SetNX(ctx, slot, attempt.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("claim open slot: %w", err)
	}
	if !ok {
		return domain.ErrAttemptAlreadyOpen
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, attemptKey(attempt.ID), payload, 0)
		pipe.ZAdd(ctx, historyKey(attempt.ParticipantID, attempt.QuizVersionID), redis.Z{
			Score:  float64(attempt.StartedAt.UnixNano()),
			Member: attempt.ID,
		})
		pipe.SAdd(ctx, openSetKey, attempt.ID)
		return nil
	})
	if err != nil {
		_ = s.client.Del(ctx, slot).Err()
		return fmt.Errorf("store attempt: %w", err)
	}
	return nil
}

func (s *AttemptStore) Get(ctx context.Context, attemptID string) (domain.Attempt, error) {
	return getAttempt(ctx, s.client, attemptID)
}

func (s *AttemptStore) SaveDraft(ctx context.Context, attemptID string, answers map[string]domain.Value) (domain.Attempt, error) {
	var saved domain.Attempt
	key := attemptKey(attemptID)
	for try := 0; try < draftRetries; try++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			attempt, err := getAttempt(ctx, tx, attemptID)
			if err != nil {
				return err
			}
			if !attempt.Active {
				return domain.ErrAttemptNotFound
			}
			if attempt.Completed() {
				return domain.ErrAlreadyCompleted
			}
			if attempt.Response == nil {
				attempt.Response = make(map[string]domain.Value, len(answers))
			}
			for k, v := range answers {
				attempt.Response[k] = v
			}
			payload, err := json.Marshal(attempt)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, payload, 0)
				return nil
			})
			saved = attempt
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return saved, err
	}
	return domain.Attempt{}, fmt.Errorf("save draft: %w", redis.TxFailedErr)
}

func (s *AttemptStore) Seal(ctx context.Context, attempt domain.Attempt) error {
	payload, err := json.Marshal(attempt)
	if err != nil {
		return err
	}
	key := attemptKey(attempt.ID)
	last := lastKey(attempt.ParticipantID, attempt.QuizVersionID)
	slot := openKey(attempt.ParticipantID, attempt.QuizVersionID)

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := getAttempt(ctx, tx, attempt.ID)
		if err != nil {
			return err
		}
		if !current.Active {
			return domain.ErrAttemptNotFound
		}
		if current.Completed() {
			return domain.ErrAlreadyCompleted
		}
		lastNumber, err := tx.Get(ctx, last).Int()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if attempt.AttemptNumber != lastNumber+1 {
			return domain.ErrAttemptNumberConflict
		}
		holder, err := tx.Get(ctx, slot).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			pipe.Set(ctx, last, attempt.AttemptNumber, 0)
			if holder == attempt.ID {
				pipe.Del(ctx, slot)
			}
			pipe.SRem(ctx, openSetKey, attempt.ID)
			return nil
		})
		return err
	}, key, last, slot)
	if errors.Is(err, redis.TxFailedErr) {
		return domain.ErrAttemptNumberConflict
	}
	return err
}

func (s *AttemptStore) ListOpen(ctx context.Context) ([]domain.Attempt, error) {
	ids, err := s.client.SMembers(ctx, openSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list open attempts: %w", err)
	}
	attempts, err := s.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := attempts[:0]
	for _, a := range attempts {
		if a.Active && !a.Completed() {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (s *AttemptStore) ListByParticipant(ctx context.Context, participantID, quizVersionID string) ([]domain.Attempt, error) {
	attempts, err := s.history(ctx, participantID, quizVersionID)
	if err != nil {
		return nil, err
	}
	out := attempts[:0]
	for _, a := range attempts {
		if a.Active {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *AttemptStore) Deactivate(ctx context.Context, attemptID string) error {
	key := attemptKey(attemptID)
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		attempt, err := getAttempt(ctx, tx, attemptID)
		if err != nil {
			return err
		}
		attempt.Active = false
		payload, err := json.Marshal(attempt)
		if err != nil {
			return err
		}
		slot := openKey(attempt.ParticipantID, attempt.QuizVersionID)
		holder, err := tx.Get(ctx, slot).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			if holder == attemptID {
				pipe.Del(ctx, slot)
			}
			pipe.SRem(ctx, openSetKey, attemptID)
			return nil
		})
		return err
	}, key)
}

// history returns every attempt of the pair, deactivated ones included, ordered by start.
func (s *AttemptStore) history(ctx context.Context, participantID, quizVersionID string) ([]domain.Attempt, error) {
	ids, err := s.client.ZRange(ctx, historyKey(participantID, quizVersionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read attempt history: %w", err)
	}
	return s.load(ctx, ids)
}

func (s *AttemptStore) load(ctx context.Context, ids []string) ([]domain.Attempt, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = attemptKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load attempts: %w", err)
	}
	out := make([]domain.Attempt, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var a domain.Attempt
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("decode attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, nil
}

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getAttempt(ctx context.Context, c getter, attemptID string) (domain.Attempt, error) {
	payload, err := c.Get(ctx, attemptKey(attemptID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("read attempt: %w", err)
	}
	var a domain.Attempt
	if err := json.Unmarshal(payload, &a); err != nil {
		return domain.Attempt{}, fmt.Errorf("decode attempt: %w", err)
	}
	return a, nil
}

const openSetKey = "attempts:open"

func attemptKey(id string) string { return "attempt:" + id }

func historyKey(participantID, quizVersionID string) string {
	return "attempts:" + participantID + ":" + quizVersionID
}

func openKey(participantID, quizVersionID string) string {
	return historyKey(participantID, quizVersionID) + ":open"
}

func lastKey(participantID, quizVersionID string) string {
	return historyKey(participantID, quizVersionID) + ":last"
}
