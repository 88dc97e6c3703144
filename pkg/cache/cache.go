package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrCacheMiss = errors.New("cache: key not found")

// Service stores values under string keys. Values other than strings and
// byte slices are JSON encoded.
type Service interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Store is the byte level contract the layered cache composes. A zero ttl
// means no expiry.
type Store interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	SetBytes(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

func getValue(ctx context.Context, s Store, key string, dest interface{}) error {
	data, err := s.GetBytes(ctx, key)
	if err != nil {
		return err
	}
	return decode(data, dest)
}

func setValue(ctx context.Context, s Store, key string, value interface{}, ttl time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	return s.SetBytes(ctx, key, data, ttl)
}

func encode(v interface{}) ([]byte, error) {
	switch t := v.(type) {
	case []byte:
		return t, nil
	case string:
		return []byte(t), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cache encode: %w", err)
	}
	return b, nil
}

func decode(data []byte, dest interface{}) error {
	switch t := dest.(type) {
	case *[]byte:
		*t = append((*t)[:0], data...)
		return nil
	case *string:
		*t = string(data)
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("cache decode: %w", err)
	}
	return nil
}

// GenerateKey joins parts with ':'.
func GenerateKey(parts ...string) string {
	return strings.Join(parts, ":")
}

// HashKey shortens an arbitrary string into a stable key segment.
func HashKey(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
