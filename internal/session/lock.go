package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "pos:lock:"

// ErrLocked возвращается, если сессию не удалось захватить: её держит другой запрос.
var ErrLocked = errors.New("cart session is busy")

// RedisLocker сериализует операции над одной сессией между несколькими экземплярами кассы.
// Пока блокировка удерживается, её ttl продлевается в фоне, поэтому долгая
// операция (запись продажи с повторами) не теряет её посередине.
type RedisLocker struct {
	client       *redislock.Client
	ttl          time.Duration
	refreshEvery time.Duration
	retry        redislock.RetryStrategy
}

// NewRedisLocker создаёт распределённую блокировку сессий. ttl ограничивает время удержания,
// если экземпляр упал, не освободив блокировку.
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		client:       redislock.New(client),
		ttl:          ttl,
		refreshEvery: ttl / 3,
		retry:        redislock.LimitRetry(redislock.LinearBackoff(25*time.Millisecond), 200),
	}
}

// Lock захватывает сессию и возвращает функцию освобождения.
func (l *RedisLocker) Lock(ctx context.Context, sessionID string) (func(), error) {
	lock, err := l.client.Obtain(ctx, lockKeyPrefix+sessionID, l.ttl, &redislock.Options{
		RetryStrategy: l.retry,
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLocked
	}
	if err != nil {
		return nil, fmt.Errorf("obtain session lock: %w", err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(lock, stop, done)

	return func() {
		close(stop)
		<-done
		// Блокировка истечёт сама по ttl, если освободить её не удалось.
		_ = lock.Release(context.Background())
	}, nil
}

func (l *RedisLocker) keepAlive(lock *redislock.Lock, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.refreshEvery)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := lock.Refresh(context.Background(), l.ttl, nil); err != nil {
				return
			}
		}
	}
}
