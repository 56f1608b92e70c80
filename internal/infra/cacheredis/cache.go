package cacheredis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/HexlinkOfficial/hexlink-verifier/internal/domain"
	"github.com/HexlinkOfficial/hexlink-verifier/internal/usecase"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "hexlink-verifier:pubkey:"

// Cache shares public key material between replicas.
type Cache struct {
	client *redis.Client
}

type entry struct {
	Name      string  `json:"name"`
	PEM       string  `json:"pem"`
	PEMCRC32C *uint32 `json:"pem_crc32c,omitempty"`
	Algorithm string  `json:"algorithm,omitempty"`
}

func New(addr, password string, db int) (*Cache, error) {
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Cache{client: client}, nil
}

func NewWithClient(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Get(ctx context.Context, name string) (*domain.PublicKeyMaterial, bool, error) {
	raw, err := c.client.Get(ctx, keyPrefix+name).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false, err
	}
	return &domain.PublicKeyMaterial{Name: e.Name, PEM: e.PEM, PEMCRC32C: e.PEMCRC32C, Algorithm: e.Algorithm}, true, nil
}

// Put stores material. A zero ttl keeps it until evicted.
func (c *Cache) Put(ctx context.Context, name string, material domain.PublicKeyMaterial, ttl time.Duration) error {
	raw, err := json.Marshal(entry{
		Name:      material.Name,
		PEM:       material.PEM,
		PEMCRC32C: material.PEMCRC32C,
		Algorithm: material.Algorithm,
	})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, keyPrefix+name, raw, ttl).Err()
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	return c.client.Close()
}

var _ usecase.PublicKeyCache = (*Cache)(nil)
