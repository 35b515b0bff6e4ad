package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Keksclan/actionmw"
	"google.golang.org/protobuf/proto"
)

// Codec turns action results into cache bytes and back.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte) (any, error)
}

type jsonCodec[T any] struct{}

// JSON returns a Codec that stores results as JSON and decodes them as T.
func JSON[T any]() Codec {
	return jsonCodec[T]{}
}

func (jsonCodec[T]) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec[T]) Unmarshal(data []byte) (any, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

type protoCodec struct {
	newMsg func() proto.Message
}

// Proto returns a Codec for actions that return protobuf messages. newMsg
// allocates the message a cached value is decoded into.
func Proto(newMsg func() proto.Message) Codec {
	return protoCodec{newMsg: newMsg}
}

func (c protoCodec) Marshal(v any) ([]byte, error) {
	m, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("cache: proto codec cannot encode %T", v)
	}
	return proto.Marshal(m)
}

func (c protoCodec) Unmarshal(data []byte) (any, error) {
	m := c.newMsg()
	if err := proto.Unmarshal(data, m); err != nil {
		return nil, err
	}
	return m, nil
}

// KeyFunc derives the cache key for one call.
type KeyFunc func(target any, args []any) (string, error)

// DefaultKey keys a call by its target's string form and its JSON-encoded
// arguments.
func DefaultKey(target any, args []any) (string, error) {
	b, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("cache: encode key: %w", err)
	}
	return fmt.Sprint(target) + ":" + string(b), nil
}

// Memo describes how an action's results are cached.
type Memo struct {
	Cache Cache
	TTL   time.Duration
	// Codec defaults to JSON[any]().
	Codec Codec
	// Key defaults to DefaultKey.
	Key KeyFunc
	// Namespace is prepended to every key, usually the action type.
	Namespace string
}

// Wrap returns an action function that serves repeated calls from m.Cache.
// Failed calls are not cached. A key derivation error fails the call.
func (m Memo) Wrap(fn actionmw.ActionFunc) actionmw.ActionFunc {
	codec := m.Codec
	if codec == nil {
		codec = JSON[any]()
	}
	keyOf := m.Key
	if keyOf == nil {
		keyOf = DefaultKey
	}

	return func(ctx context.Context, target any, args ...any) (any, error) {
		key, err := keyOf(target, args)
		if err != nil {
			return nil, err
		}
		if m.Namespace != "" {
			key = m.Namespace + "|" + key
		}

		raw, err := m.Cache.GetOrSet(ctx, key, m.TTL, func(ctx context.Context) ([]byte, error) {
			v, err := fn(ctx, target, args...)
			if err != nil {
				return nil, err
			}
			return codec.Marshal(v)
		})
		if err != nil {
			return nil, err
		}
		return codec.Unmarshal(raw)
	}
}
