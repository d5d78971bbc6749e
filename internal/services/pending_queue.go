package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"crmflow/internal/config"
	"crmflow/internal/models"
)

// DelayQueue holds delayed actions until they are due.
type DelayQueue interface {
	Enqueue(ctx context.Context, items []*models.PendingAction) error
	// Claim returns up to limit due actions, already marked executando. Rows
	// left executando past the claim lease are handed out again.
	Claim(ctx context.Context, now time.Time, limit int) ([]models.PendingAction, error)
	Finish(ctx context.Context, p *models.PendingAction) error
}

// DefaultClaimLease is how long a claimed action may stay executando before
// another worker takes it over.
const DefaultClaimLease = 15 * time.Minute

// ClaimLease covers a whole claimed batch: rows are stamped when claimed and
// the last one runs after every earlier action of the batch.
func ClaimLease(cfg config.AutomationConfig) time.Duration {
	timeout := cfg.ActionTimeout
	if timeout <= 0 {
		return DefaultClaimLease
	}
	batch := cfg.PendingBatchSize
	if batch <= 0 {
		batch = 100
	}
	return timeout * time.Duration(batch+1)
}

func leaseOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultClaimLease
	}
	return d
}

// DBQueue keeps delayed actions in acoes_pendentes only.
type DBQueue struct {
	db    *gorm.DB
	lease time.Duration
}

func NewDBQueue(db *gorm.DB) *DBQueue { return &DBQueue{db: db, lease: DefaultClaimLease} }

// SetLease 设置 executando 状态的租约
func (q *DBQueue) SetLease(d time.Duration) { q.lease = leaseOrDefault(d) }

func (q *DBQueue) Enqueue(ctx context.Context, items []*models.PendingAction) error {
	if len(items) == 0 {
		return nil
	}
	if err := q.db.WithContext(ctx).Create(items).Error; err != nil {
		return fmt.Errorf("enqueue pending actions: %w", err)
	}
	return nil
}

func (q *DBQueue) Claim(ctx context.Context, now time.Time, limit int) ([]models.PendingAction, error) {
	staleBefore := now.Add(-leaseOrDefault(q.lease))
	var due []models.PendingAction
	if err := q.db.WithContext(ctx).
		Where("(status = ? AND executar_em <= ?) OR (status = ? AND updated_at < ?)",
			models.PendingStatusWaiting, now, models.PendingStatusRunning, staleBefore).
		Order("executar_em ASC, id ASC").
		Limit(limit).
		Find(&due).Error; err != nil {
		return nil, fmt.Errorf("load pending actions: %w", err)
	}
	return claimRows(ctx, q.db, due, staleBefore)
}

func (q *DBQueue) Finish(ctx context.Context, p *models.PendingAction) error {
	return finishRow(ctx, q.db, p)
}

// RedisQueue indexes acoes_pendentes ids in a sorted set scored by executar_em.
// Rows stay in the database; redis only decides what is due.
type RedisQueue struct {
	db    *gorm.DB
	rdb   *redis.Client
	key   string
	lease time.Duration
}

func NewRedisQueue(db *gorm.DB, rdb *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = "crmflow:acoes_pendentes"
	}
	return &RedisQueue{db: db, rdb: rdb, key: key, lease: DefaultClaimLease}
}

// SetLease 设置 executando 状态的租约
func (q *RedisQueue) SetLease(d time.Duration) { q.lease = leaseOrDefault(d) }

// Enqueue writes the rows and indexes them in one transaction: a failed ZADD
// rolls the rows back so nothing is left pendente outside the sorted set.
func (q *RedisQueue) Enqueue(ctx context.Context, items []*models.PendingAction) error {
	if len(items) == 0 {
		return nil
	}
	var members []redis.Z
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(items).Error; err != nil {
			return fmt.Errorf("enqueue pending actions: %w", err)
		}
		members = make([]redis.Z, 0, len(items))
		for _, p := range items {
			members = append(members, redis.Z{
				Score:  float64(p.RunAt.Unix()),
				Member: strconv.FormatUint(uint64(p.ID), 10),
			})
		}
		if err := q.rdb.ZAdd(ctx, q.key, members...).Err(); err != nil {
			members = nil
			return fmt.Errorf("redis zadd: %w", err)
		}
		return nil
	})
	if err != nil && len(members) > 0 {
		// commit 失败：id 可能被复用，撤回索引
		for _, m := range members {
			q.rdb.ZRem(context.WithoutCancel(ctx), q.key, m.Member)
		}
	}
	return err
}

func (q *RedisQueue) Claim(ctx context.Context, now time.Time, limit int) ([]models.PendingAction, error) {
	due, err := q.claimIndexed(ctx, now, limit)
	if err != nil {
		return due, err
	}
	if len(due) >= limit {
		return due, nil
	}
	// 已出队但执行者失联的行不在 sorted set 里，按租约从数据库回收
	staleBefore := now.Add(-leaseOrDefault(q.lease))
	var stale []models.PendingAction
	if err := q.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", models.PendingStatusRunning, staleBefore).
		Order("executar_em ASC, id ASC").
		Limit(limit - len(due)).
		Find(&stale).Error; err != nil {
		return due, fmt.Errorf("load stale pending actions: %w", err)
	}
	reclaimed, err := claimRows(ctx, q.db, stale, staleBefore)
	return append(due, reclaimed...), err
}

func (q *RedisQueue) claimIndexed(ctx context.Context, now time.Time, limit int) ([]models.PendingAction, error) {
	members, err := q.rdb.ZRangeByScoreWithScores(ctx, q.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrangebyscore: %w", err)
	}
	var (
		owned   []uint
		removed []redis.Z
	)
	for _, m := range members {
		member, ok := m.Member.(string)
		if !ok {
			continue
		}
		// ZREM 成功者获得该任务
		n, err := q.rdb.ZRem(ctx, q.key, member).Result()
		if err != nil {
			q.restore(ctx, removed)
			return nil, fmt.Errorf("redis zrem: %w", err)
		}
		if n == 0 {
			continue
		}
		removed = append(removed, m)
		id, err := strconv.ParseUint(member, 10, 64)
		if err != nil {
			continue
		}
		owned = append(owned, uint(id))
	}
	if len(owned) == 0 {
		return nil, nil
	}
	var due []models.PendingAction
	if err := q.db.WithContext(ctx).
		Where("id IN ? AND status = ?", owned, models.PendingStatusWaiting).
		Order("executar_em ASC, id ASC").
		Find(&due).Error; err != nil {
		q.restore(ctx, removed)
		return nil, fmt.Errorf("load pending actions: %w", err)
	}
	claimed, err := claimRows(ctx, q.db, due, time.Time{})
	if err != nil {
		q.restore(ctx, unclaimed(removed, claimed))
	}
	return claimed, err
}

// restore 把已 ZREM 但未认领的成员放回，保留原分数
func (q *RedisQueue) restore(ctx context.Context, members []redis.Z) {
	if len(members) == 0 {
		return
	}
	_ = q.rdb.ZAdd(context.WithoutCancel(ctx), q.key, members...).Err()
}

func unclaimed(members []redis.Z, claimed []models.PendingAction) []redis.Z {
	taken := make(map[string]bool, len(claimed))
	for _, p := range claimed {
		taken[strconv.FormatUint(uint64(p.ID), 10)] = true
	}
	var out []redis.Z
	for _, m := range members {
		if member, _ := m.Member.(string); !taken[member] {
			out = append(out, m)
		}
	}
	return out
}

func (q *RedisQueue) Finish(ctx context.Context, p *models.PendingAction) error {
	return finishRow(ctx, q.db, p)
}

// claimRows 乐观锁：只有把 pendente（或租约过期的 executando）改成 executando
// 的一方执行。出错时返回已认领的行，调用方仍需执行它们。
func claimRows(ctx context.Context, db *gorm.DB, rows []models.PendingAction, staleBefore time.Time) ([]models.PendingAction, error) {
	claimed := make([]models.PendingAction, 0, len(rows))
	for _, p := range rows {
		q := db.WithContext(ctx).Model(&models.PendingAction{}).Where("id = ?", p.ID)
		if p.Status == models.PendingStatusRunning {
			q = q.Where("status = ? AND updated_at < ?", models.PendingStatusRunning, staleBefore)
		} else {
			q = q.Where("status = ?", models.PendingStatusWaiting)
		}
		res := q.Updates(map[string]interface{}{"status": models.PendingStatusRunning, "updated_at": time.Now()})
		if res.Error != nil {
			return claimed, fmt.Errorf("claim pending action %d: %w", p.ID, res.Error)
		}
		if res.RowsAffected == 1 {
			p.Status = models.PendingStatusRunning
			claimed = append(claimed, p)
		}
	}
	return claimed, nil
}

func finishRow(ctx context.Context, db *gorm.DB, p *models.PendingAction) error {
	return db.WithContext(ctx).Model(&models.PendingAction{}).
		Where("id = ?", p.ID).
		Updates(map[string]interface{}{
			"status":     p.Status,
			"tentativas": p.Attempts,
			"erro":       p.Error,
			"updated_at": time.Now(),
		}).Error
}
