package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"crmflow/internal/automation"
	"crmflow/internal/config"
	"crmflow/internal/metrics"
	"crmflow/internal/models"
)

// PendingActionWorker 执行 delay_horas 延迟动作并回写执行记录
type PendingActionWorker struct {
	db         *gorm.DB
	queue      DelayQueue
	dispatcher *ActionDispatcher
	clients    ClientStore
	logger     *logrus.Logger
	interval   time.Duration
	batchSize  int
	now        func() time.Time
}

func NewPendingActionWorker(db *gorm.DB, queue DelayQueue, dispatcher *ActionDispatcher, clients ClientStore, cfg config.AutomationConfig, logger *logrus.Logger) *PendingActionWorker {
	if logger == nil {
		logger = logrus.New()
	}
	if queue == nil {
		queue = NewDBQueue(db)
	}
	if l, ok := queue.(interface{ SetLease(time.Duration) }); ok {
		l.SetLease(ClaimLease(cfg))
	}
	interval := cfg.PendingPollInterval
	if interval <= 0 {
		interval = time.Minute
	}
	batch := cfg.PendingBatchSize
	if batch <= 0 {
		batch = 100
	}
	return &PendingActionWorker{
		db:         db,
		queue:      queue,
		dispatcher: dispatcher,
		clients:    clients,
		logger:     logger,
		interval:   interval,
		batchSize:  batch,
		now:        time.Now,
	}
}

// Start 轮询循环，ctx 取消时退出
func (w *PendingActionWorker) Start(ctx context.Context) {
	w.logger.Info("Starting pending action worker")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Pending action worker stopped")
			return
		case <-ticker.C:
			if _, err := w.ProcessDue(ctx); err != nil {
				w.logger.Errorf("pending action worker: %v", err)
			}
		}
	}
}

// ProcessDue runs every delayed action whose time has come and returns how many ran.
func (w *PendingActionWorker) ProcessDue(ctx context.Context) (int, error) {
	ctx, span := otel.Tracer("crmflow.automation").Start(ctx, "automation.process_pending")
	defer span.End()

	// 认领中途出错时已认领的行照常执行
	due, err := w.queue.Claim(ctx, w.now(), w.batchSize)
	for i := range due {
		w.process(ctx, &due[i])
	}
	metrics.AddPendingProcessed(len(due))
	span.SetAttributes(attribute.Int("automation.pending.processed", len(due)))
	if err != nil {
		span.RecordError(err)
		return len(due), err
	}
	return len(due), nil
}

func (w *PendingActionWorker) process(ctx context.Context, p *models.PendingAction) {
	log := w.logger.WithFields(logrus.Fields{"pending_id": p.ID, "execution_id": p.ExecutionID})

	outcome, err := w.run(ctx, p)
	if err != nil {
		outcome = automation.ActionOutcome{Index: p.ActionIndex, Status: automation.StatusError, Error: err.Error()}
	}
	p.Attempts += outcome.Attempts
	if outcome.Status == automation.StatusSuccess {
		p.Status = models.PendingStatusDone
		p.Error = ""
	} else {
		p.Status = models.PendingStatusFailed
		p.Error = outcome.Error
	}
	if err := w.queue.Finish(ctx, p); err != nil {
		log.Warnf("finish pending action: %v", err)
	}
	if err := w.settle(ctx, p); err != nil {
		log.Warnf("update execution record: %v", err)
	}
}

func (w *PendingActionWorker) run(ctx context.Context, p *models.PendingAction) (automation.ActionOutcome, error) {
	var raw automation.RawAction
	if err := json.Unmarshal(p.Action, &raw); err != nil {
		return automation.ActionOutcome{}, fmt.Errorf("decode action: %w", err)
	}
	action, err := raw.Compile()
	if err != nil {
		return automation.ActionOutcome{}, err
	}
	subj, err := w.clients.Subject(ctx, p.ClientID)
	if errors.Is(err, ErrClientNotFound) {
		return automation.ActionOutcome{}, fmt.Errorf("cliente %d removido", p.ClientID)
	}
	if err != nil {
		return automation.ActionOutcome{}, err
	}
	return w.dispatcher.Run(ctx, p.AutomationID, p.ActionIndex, action, subj), nil
}

// settle 回写执行记录：失败立即置为 erro（保留第一个错误），全部完成后置为 sucesso
func (w *PendingActionWorker) settle(ctx context.Context, p *models.PendingAction) error {
	var exec models.AutomationExecution
	err := w.db.WithContext(ctx).First(&exec, p.ExecutionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if exec.Status != string(automation.StatusPending) {
		return nil
	}
	if p.Status == models.PendingStatusFailed {
		return w.db.WithContext(ctx).Model(&exec).Updates(map[string]interface{}{
			"status": string(automation.StatusError),
			"erro":   p.Error,
		}).Error
	}
	var remaining int64
	if err := w.db.WithContext(ctx).Model(&models.PendingAction{}).
		Where("execucao_id = ? AND status IN ?", exec.ID, []string{models.PendingStatusWaiting, models.PendingStatusRunning}).
		Count(&remaining).Error; err != nil {
		return err
	}
	if remaining > 0 {
		return nil
	}
	return w.db.WithContext(ctx).Model(&exec).Update("status", string(automation.StatusSuccess)).Error
}
