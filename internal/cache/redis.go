package cache

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const rolesChangedChannel = "room:roles_changed"

// rolesChangedMsg is the payload published when a room's permission rows
// change, so every API node can nudge its live session.
type rolesChangedMsg struct {
	RoomID string `json:"roomId"`
}

// RedisClient wraps the Redis client for presence counters and
// cross-node role change notifications.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient creates a new Redis client
func NewRedisClient(addr, password string) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	log.Printf("[Redis] Connected to %s", addr)
	return &RedisClient{client: client}, nil
}

// PublishRolesChanged announces that the room's permission rows changed.
// Fire-and-forget: a lost notification is caught by the periodic refresh.
func (r *RedisClient) PublishRolesChanged(ctx context.Context, roomID string) error {
	data, err := json.Marshal(rolesChangedMsg{RoomID: roomID})
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, rolesChangedChannel, data).Err(); err != nil {
		log.Printf("[Redis] Failed to publish roles change for room %s: %v", roomID, err)
		return err
	}
	return nil
}

// SubscribeRolesChanged delivers room ids from role change notifications
// to fn until ctx is cancelled. Runs in its own goroutine.
func (r *RedisClient) SubscribeRolesChanged(ctx context.Context, fn func(roomID string)) {
	sub := r.client.Subscribe(ctx, rolesChangedChannel)

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var m rolesChangedMsg
				if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
					log.Printf("[Redis] Bad roles change payload: %v", err)
					continue
				}
				fn(m.RoomID)
			}
		}
	}()
}

// Room presence counters. Best-effort occupancy numbers for room lists;
// the session registry stays authoritative for admission.

func presenceKey(roomID string) string {
	return "room:" + roomID + ":online"
}

// AddPresence marks the user online in the room.
func (r *RedisClient) AddPresence(ctx context.Context, roomID string, userID int64) error {
	key := presenceKey(roomID)
	if err := r.client.SAdd(ctx, key, userID).Err(); err != nil {
		return err
	}
	// Sessions drain within seconds of emptying; the TTL only covers
	// nodes that died without cleaning up.
	return r.client.Expire(ctx, key, 24*time.Hour).Err()
}

// RemovePresence marks the user offline in the room.
func (r *RedisClient) RemovePresence(ctx context.Context, roomID string, userID int64) error {
	return r.client.SRem(ctx, presenceKey(roomID), userID).Err()
}

// PresenceCount returns how many users are online in the room.
func (r *RedisClient) PresenceCount(ctx context.Context, roomID string) (int64, error) {
	return r.client.SCard(ctx, presenceKey(roomID)).Result()
}

// ClearPresence drops the room's presence set.
func (r *RedisClient) ClearPresence(ctx context.Context, roomID string) error {
	return r.client.Del(ctx, presenceKey(roomID)).Err()
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// Health checks if Redis is healthy
func (r *RedisClient) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
