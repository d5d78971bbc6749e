package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crmflow/internal/automation"
	"crmflow/internal/models"
)

func pendingItems(now time.Time) []*models.PendingAction {
	return []*models.PendingAction{
		{ExecutionID: 1, AutomationID: 1, ClientID: 1, Action: []byte(`{}`), RunAt: now.Add(-time.Minute), Status: models.PendingStatusWaiting},
		{ExecutionID: 1, AutomationID: 1, ClientID: 1, ActionIndex: 1, Action: []byte(`{}`), RunAt: now.Add(time.Hour), Status: models.PendingStatusWaiting},
	}
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestDBQueue_ClaimOnce(t *testing.T) {
	db := newTestDB(t)
	q := NewDBQueue(db)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, q.Enqueue(ctx, pendingItems(now)))

	due, err := q.Claim(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, models.PendingStatusRunning, due[0].Status)

	again, err := q.Claim(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, again)

	due[0].Status = models.PendingStatusDone
	due[0].Attempts = 2
	require.NoError(t, q.Finish(ctx, &due[0]))

	var row models.PendingAction
	require.NoError(t, db.First(&row, due[0].ID).Error)
	assert.Equal(t, models.PendingStatusDone, row.Status)
	assert.Equal(t, 2, row.Attempts)

	later, err := q.Claim(ctx, now.Add(2*time.Hour), 10)
	require.NoError(t, err)
	assert.Len(t, later, 1)
}

func TestDBQueue_ReclaimsExpiredLease(t *testing.T) {
	db := newTestDB(t)
	q := NewDBQueue(db)
	q.SetLease(time.Hour)
	ctx := context.Background()
	now := time.Now()

	abandoned := &models.PendingAction{
		ExecutionID: 1, AutomationID: 1, ClientID: 1, Action: []byte(`{}`),
		RunAt: now.Add(-26 * time.Hour), Status: models.PendingStatusRunning,
		UpdatedAt: now.Add(-25 * time.Hour),
	}
	inFlight := &models.PendingAction{
		ExecutionID: 1, AutomationID: 1, ClientID: 1, ActionIndex: 1, Action: []byte(`{}`),
		RunAt: now.Add(-time.Minute), Status: models.PendingStatusRunning,
		UpdatedAt: now.Add(-time.Minute),
	}
	require.NoError(t, db.Create(abandoned).Error)
	require.NoError(t, db.Create(inFlight).Error)

	due, err := q.Claim(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, abandoned.ID, due[0].ID)

	// 重新认领后刷新了租约
	again, err := q.Claim(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestRedisQueue_ClaimOnce(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()
	key := "crmflow:test:" + t.Name()

	db := newTestDB(t)
	q := NewRedisQueue(db, rdb, key)
	now := time.Now()
	require.NoError(t, q.Enqueue(ctx, pendingItems(now)))

	n, err := rdb.ZCard(ctx, key).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	due, err := q.Claim(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	again, err := q.Claim(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, again)

	n, err = rdb.ZCard(ctx, key).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestRedisQueue_EnqueueFailureLeavesNoRows(t *testing.T) {
	mr, rdb := newTestRedis(t)
	db := newTestDB(t)
	q := NewRedisQueue(db, rdb, "crmflow:test:"+t.Name())

	mr.SetError("READONLY You can't write against a read only replica.")
	err := q.Enqueue(context.Background(), pendingItems(time.Now()))
	require.Error(t, err)

	var n int64
	require.NoError(t, db.Model(&models.PendingAction{}).Count(&n).Error)
	assert.EqualValues(t, 0, n)
}

func TestRedisQueue_LoadFailureRestoresMembers(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()
	key := "crmflow:test:" + t.Name()
	db := newTestDB(t)
	q := NewRedisQueue(db, rdb, key)
	now := time.Now()
	require.NoError(t, q.Enqueue(ctx, pendingItems(now)))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = q.Claim(ctx, now, 10)
	require.Error(t, err)

	members, err := rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: "-inf", Max: "+inf"}).Result()
	require.NoError(t, err)
	assert.Len(t, members, 2)

	score, err := rdb.ZScore(ctx, key, members[0]).Result()
	require.NoError(t, err)
	assert.EqualValues(t, now.Add(-time.Minute).Unix(), int64(score))
}

func TestRedisQueue_ReclaimsExpiredLease(t *testing.T) {
	_, rdb := newTestRedis(t)
	db := newTestDB(t)
	q := NewRedisQueue(db, rdb, "crmflow:test:"+t.Name())
	q.SetLease(time.Hour)
	now := time.Now()

	abandoned := &models.PendingAction{
		ExecutionID: 1, AutomationID: 1, ClientID: 1, Action: []byte(`{}`),
		RunAt: now.Add(-26 * time.Hour), Status: models.PendingStatusRunning,
		UpdatedAt: now.Add(-25 * time.Hour),
	}
	require.NoError(t, db.Create(abandoned).Error)

	due, err := q.Claim(context.Background(), now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, abandoned.ID, due[0].ID)
}

func TestDelayedActionWithRedisDown(t *testing.T) {
	e := newTestEngine(t)
	mr, rdb := newTestRedis(t)
	e.automation.SetDelayQueue(NewRedisQueue(e.db, rdb, "crmflow:test:"+t.Name()))
	e.createRule(t, &AutomationRuleRequest{
		Name:        "Depois",
		TriggerType: "cliente_criado",
		Actions: rawJSON([]map[string]any{
			{"tipo": "enviar_whatsapp", "config": map[string]any{"mensagem": "Oi {{nome}}", "delay_horas": 1}},
		}),
	})
	client := e.createClient(t, &models.Client{Name: "Lia", Phone: "11900002222", Status: "Lead", PaymentStatus: "Pendente"})

	mr.SetError("LOADING Redis is loading the dataset in memory")
	_, err := e.automation.HandleEvent(context.Background(), automation.Event{
		Type: automation.TriggerClientCreated, UserID: 1, ClientID: client.ID,
	})
	require.Error(t, err)

	var exec models.AutomationExecution
	require.NoError(t, e.db.First(&exec).Error)
	assert.Equal(t, string(automation.StatusError), exec.Status)
	assert.EqualValues(t, 0, countRows(t, e, &models.PendingAction{}))
}
