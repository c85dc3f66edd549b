package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	redis "github.com/redis/go-redis/v9"
)

// publishIfNewer stores the update as the latest snapshot and announces it,
// unless a newer version is already stored.
var publishIfNewer = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current then
	local decoded = cjson.decode(current)
	if tonumber(decoded.version) > tonumber(ARGV[2]) then
		return 0
	end
end
redis.call('SET', KEYS[1], ARGV[1])
redis.call('PUBLISH', KEYS[2], ARGV[1])
return 1
`)

type RedisTransport struct {
	client *redis.Client
}

func NewRedisTransport(client *redis.Client) *RedisTransport {
	return &RedisTransport{client: client}
}

func channelKey(shopID string) string {
	return fmt.Sprintf("catatwarung:sync:%s", shopID)
}

func snapshotKey(shopID string, aggregate string) string {
	return fmt.Sprintf("catatwarung:snapshot:%s:%s", shopID, aggregate)
}

func (t *RedisTransport) Publish(ctx context.Context, update Update) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return err
	}
	keys := []string{snapshotKey(update.ShopID, update.Aggregate), channelKey(update.ShopID)}
	return publishIfNewer.Run(ctx, t.client, keys, payload, update.Version).Err()
}

func (t *RedisTransport) Latest(ctx context.Context, shopID string, aggregate string) (*Update, bool, error) {
	raw, err := t.client.Get(ctx, snapshotKey(shopID, aggregate)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var update Update
	if err := json.Unmarshal(raw, &update); err != nil {
		return nil, false, err
	}
	return &update, true, nil
}

func (t *RedisTransport) Subscribe(ctx context.Context, shopID string, handle func(Update)) error {
	sub := t.client.Subscribe(ctx, channelKey(shopID))
	defer func() {
		_ = sub.Close()
	}()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var update Update
			if err := json.Unmarshal([]byte(msg.Payload), &update); err != nil {
				log.Printf("[mirror] WARN: malformed sync message: %v", err)
				continue
			}
			handle(update)
		}
	}
}
