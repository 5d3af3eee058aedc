package verification

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisGateConfig 描述 Redis 核验存储的连接参数。
type RedisGateConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisGate 将核验标记持久化到 Redis，多实例部署时共享。
type RedisGate struct {
	client *redis.Client
	prefix string
}

var _ Gate = (*RedisGate)(nil)

// NewRedisGate 创建 RedisGate。
func NewRedisGate(cfg RedisGateConfig) (*RedisGate, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "remitchain:verified:"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return &RedisGate{client: client, prefix: prefix}, nil
}

// Verified 返回地址的核验状态。
func (g *RedisGate) Verified(ctx context.Context, address string) (Record, error) {
	key := g.prefix + normalizeAddress(address)
	value, err := g.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{Address: address, Verified: false}, nil
		}
		return Record{}, fmt.Errorf("读取核验标记失败: %w", err)
	}
	verifiedAt, _ := strconv.ParseInt(value, 10, 64)
	return Record{Address: address, Verified: true, VerifiedAt: verifiedAt}, nil
}

// MarkVerified 将地址标记为已核验。重复标记保留首次时间。
func (g *RedisGate) MarkVerified(ctx context.Context, address string) (Record, error) {
	key := g.prefix + normalizeAddress(address)
	now := time.Now().Unix()
	set, err := g.client.SetNX(ctx, key, strconv.FormatInt(now, 10), 0).Result()
	if err != nil {
		return Record{}, fmt.Errorf("写入核验标记失败: %w", err)
	}
	if !set {
		return g.Verified(ctx, address)
	}
	return Record{Address: address, Verified: true, VerifiedAt: now}, nil
}

// Close 关闭 Redis 连接。
func (g *RedisGate) Close() error {
	if g == nil || g.client == nil {
		return nil
	}
	return g.client.Close()
}
