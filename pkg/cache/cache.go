package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var ErrCacheMiss = errors.New("cache: key not found")

// Service defines cache operations. Values are JSON encoded unless they are strings.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, keys ...string) (bool, error)
	// MSet writes all values with the same expiration as one atomic batch.
	MSet(ctx context.Context, values map[string]interface{}, expiration time.Duration) error
	// MGet returns raw values for the keys that exist.
	MGet(ctx context.Context, keys ...string) (map[string]string, error)
}

// MGetTyped retrieves multiple keys and unmarshals them. Undecodable values are skipped.
func MGetTyped[T any](ctx context.Context, c Service, keys ...string) (map[string]T, error) {
	if len(keys) == 0 {
		return make(map[string]T), nil
	}

	raw, err := c.MGet(ctx, keys...)
	if err != nil {
		return nil, err
	}

	out := make(map[string]T, len(raw))
	for key, v := range raw {
		var obj T
		if err := json.Unmarshal([]byte(v), &obj); err != nil {
			continue
		}
		out[key] = obj
	}
	return out, nil
}

func encodeValue(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(value)
	}
}

func decodeValue(data []byte, dest interface{}) error {
	switch d := dest.(type) {
	case *string:
		*d = string(data)
		return nil
	case *[]byte:
		*d = append((*d)[:0], data...)
		return nil
	default:
		return json.Unmarshal(data, dest)
	}
}
