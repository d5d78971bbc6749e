package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	gormtracing "gorm.io/plugin/opentelemetry/tracing"

	"crmflow/internal/config"
	"crmflow/internal/models"
)

// Open 连接 postgres 并配置连接池；tracing 开启时挂载 gorm otel 插件
func Open(cfg *config.Config, dsn string, log *logrus.Logger) (*gorm.DB, error) {
	if dsn == "" {
		dsn = cfg.Database.DSN()
	}
	level := gormlogger.Warn
	if cfg.Log.Level == "debug" {
		level = gormlogger.Info
	}
	gl := gormlogger.New(log, gormlogger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
	})
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gl})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	if cfg.Database.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	}
	if cfg.Database.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	}
	if cfg.Monitoring.Tracing.Enabled {
		if err := db.Use(gormtracing.NewPlugin()); err != nil {
			log.Warnf("gorm tracing plugin: %v", err)
		}
	}
	return db, nil
}

// Migrate 自动迁移所有模型并补充复合索引
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_automacoes_user_trigger ON automacoes(user_id, trigger_tipo, ativo)",
		"CREATE INDEX IF NOT EXISTS idx_execucoes_regra_cliente ON automacao_execucoes(automacao_id, cliente_id, executado_em)",
		"CREATE INDEX IF NOT EXISTS idx_clientes_user_status ON clientes(user_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_clientes_pagamento_venc ON clientes(status_pagamento, data_vencimento)",
		"CREATE INDEX IF NOT EXISTS idx_acoes_pendentes_due ON acoes_pendentes(status, executar_em)",
		"CREATE INDEX IF NOT EXISTS idx_tarefas_user_status ON tarefas(user_id, status, data_vencimento)",
	}
	for _, stmt := range indexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// OpenRedis 创建 redis 客户端并做一次 PING
func OpenRedis(ctx context.Context, rc config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", rc.Host, rc.Port),
		Password:     rc.Password,
		DB:           rc.DB,
		PoolSize:     rc.PoolSize,
		MinIdleConns: rc.MinIdleConns,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
