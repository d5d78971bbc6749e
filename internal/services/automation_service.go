package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"crmflow/internal/automation"
	"crmflow/internal/config"
	"crmflow/internal/metrics"
	"crmflow/internal/models"
	"crmflow/pkg/utils"
)

// MaxBatchClients bounds one batch run.
const MaxBatchClients = 500

// AutomationService 规则引擎：事件分类、条件评估、动作分发与执行记录
type AutomationService struct {
	db         *gorm.DB
	logger     *logrus.Logger
	clients    ClientStore
	dispatcher *ActionDispatcher
	queue      DelayQueue
	classifier automation.Classifier
	logSkipped bool
	now        func() time.Time
}

func NewAutomationService(db *gorm.DB, clients ClientStore, dispatcher *ActionDispatcher, cfg config.AutomationConfig, logger *logrus.Logger) *AutomationService {
	if logger == nil {
		logger = logrus.New()
	}
	return &AutomationService{
		db:         db,
		logger:     logger,
		clients:    clients,
		dispatcher: dispatcher,
		queue:      NewDBQueue(db),
		classifier: automation.Classifier{Policy: automation.ParseDaysPolicy(cfg.DaysPolicy)},
		logSkipped: cfg.LogSkipped,
		now:        time.Now,
	}
}

// SetDelayQueue 替换延迟队列（redis）
func (s *AutomationService) SetDelayQueue(q DelayQueue) {
	if q != nil {
		s.queue = q
	}
}

// AutomationRuleRequest 创建/更新规则请求
type AutomationRuleRequest struct {
	Name          string          `json:"nome" binding:"required"`
	Description   string          `json:"descricao"`
	TriggerType   string          `json:"trigger_tipo" binding:"required"`
	TriggerConfig json.RawMessage `json:"trigger_config"`
	Conditions    json.RawMessage `json:"condicoes"`
	Actions       json.RawMessage `json:"acoes"`
	Active        *bool           `json:"ativo"`
}

// AutomationListRequest 规则列表过滤
type AutomationListRequest struct {
	TriggerType string `form:"trigger_tipo"`
	Active      *bool  `form:"ativo"`
}

// ExecutionListRequest 执行记录查询
type ExecutionListRequest struct {
	Page         int    `form:"page,default=1"`
	PageSize     int    `form:"page_size,default=20"`
	AutomationID uint   `form:"automacao_id"`
	ClientID     uint   `form:"cliente_id"`
	Status       string `form:"status"`
}

// ExecutionView is an execution record joined with rule and client names.
type ExecutionView struct {
	models.AutomationExecution
	RuleName   string `json:"automacao_nome"`
	ClientName string `json:"cliente_nome"`
}

// EventResult summarizes one processed event.
type EventResult struct {
	Event      automation.Event             `json:"evento"`
	Matched    int                          `json:"regras_compativeis"`
	Fired      int                          `json:"regras_disparadas"`
	Skipped    int                          `json:"regras_ignoradas"`
	Executions []models.AutomationExecution `json:"execucoes"`
}

// AutomationEventRequest 单个事件提交
type AutomationEventRequest struct {
	Event         string `json:"evento" binding:"required"`
	ClientID      uint   `json:"cliente_id" binding:"required"`
	Days          int    `json:"dias"`
	FromStatus    string `json:"status_de"`
	ToStatus      string `json:"status_para"`
	AppointmentID uint   `json:"agendamento_id"`
}

// AutomationBatchRunRequest 批量运行请求
type AutomationBatchRunRequest struct {
	Event      string `json:"evento" binding:"required"`
	ClientIDs  []uint `json:"cliente_ids"`
	Days       int    `json:"dias"`
	FromStatus string `json:"status_de"`
	ToStatus   string `json:"status_para"`
	DryRun     bool   `json:"dry_run"`
}

// AutomationBatchRunResult 单个客户的批量运行结果
type AutomationBatchRunResult struct {
	ClientID     uint   `json:"cliente_id"`
	MatchedRules []uint `json:"regras"`
	Fired        int    `json:"disparadas"`
	Error        string `json:"erro,omitempty"`
}

// AutomationBatchRunResponse 批量运行响应
type AutomationBatchRunResponse struct {
	DryRun           bool                       `json:"dry_run"`
	ClientsProcessed int                        `json:"clientes_processados"`
	Matches          int                        `json:"correspondencias"`
	Results          []AutomationBatchRunResult `json:"resultados"`
}

// HandleEvent classifies evt, evaluates the matching rules against the client
// and dispatches the actions of every rule whose conditions hold. Rule misses
// and condition failures are silent; persistence failures are returned.
func (s *AutomationService) HandleEvent(ctx context.Context, evt automation.Event) (*EventResult, error) {
	if evt.ClientID == 0 {
		return nil, fmt.Errorf("%w: evento sem cliente", ErrInvalidInput)
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = s.now()
	}
	ctx, span := otel.Tracer("crmflow.automation").Start(ctx, "automation.HandleEvent")
	defer span.End()
	span.SetAttributes(
		attribute.String("automation.trigger", string(evt.Type)),
		attribute.Int64("automation.client_id", int64(evt.ClientID)),
	)
	start := time.Now()
	defer func() { metrics.ObserveEvent(string(evt.Type), time.Since(start)) }()

	result := &EventResult{Event: evt}
	matched, subj, err := s.match(ctx, evt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	result.Matched = len(matched)

	// 分类完成后评估必须跑完，调用方取消不再中断动作
	runCtx := context.WithoutCancel(ctx)
	for _, rule := range matched {
		exec, fired, err := s.processRule(runCtx, rule, subj, evt)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return result, err
		}
		if fired {
			result.Fired++
		} else {
			result.Skipped++
		}
		if exec != nil {
			result.Executions = append(result.Executions, *exec)
		}
	}
	span.SetAttributes(attribute.Int("automation.fired", result.Fired))
	return result, nil
}

// match returns the classified rules owned by the client's tenant, plus the
// loaded subject. A classification miss returns no rules and no subject.
func (s *AutomationService) match(ctx context.Context, evt automation.Event) ([]*automation.Rule, *automation.Subject, error) {
	rules, err := s.loadRules(ctx, evt.Type, evt.UserID)
	if err != nil {
		return nil, nil, err
	}
	candidates := s.classifier.Classify(rules, evt)
	if len(candidates) == 0 {
		return nil, nil, nil
	}
	subj, err := s.clients.Subject(ctx, evt.ClientID)
	if err != nil {
		return nil, nil, err
	}
	if subj.DaysOverdue == nil && evt.Type == automation.TriggerPaymentOverdueDays {
		days := evt.Days
		subj.DaysOverdue = &days
	}
	owned := candidates[:0]
	for _, r := range candidates {
		if subj.UserID == 0 || r.UserID == subj.UserID {
			owned = append(owned, r)
		}
	}
	return owned, subj, nil
}

func (s *AutomationService) loadRules(ctx context.Context, trigger automation.TriggerType, userID uint) ([]*automation.Rule, error) {
	var rows []models.Automation
	if err := s.db.WithContext(ctx).
		Scopes(ownedBy(userID)).
		Where("ativo = ? AND trigger_tipo = ?", true, string(trigger)).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load automations: %w", err)
	}
	rules := make([]*automation.Rule, 0, len(rows))
	for i := range rows {
		r, err := compileRow(&rows[i])
		if err != nil {
			s.logger.WithField("automation_id", rows[i].ID).Warnf("automation: skipping invalid rule: %v", err)
			continue
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// processRule evaluates one classified rule. fired is true when actions were dispatched.
func (s *AutomationService) processRule(ctx context.Context, r *automation.Rule, subj *automation.Subject, evt automation.Event) (*models.AutomationExecution, bool, error) {
	log := s.logger.WithFields(logrus.Fields{"automation_id": r.ID, "client_id": subj.ID})

	if evt.OncePerDay {
		done, err := s.executedToday(ctx, r.ID, subj.ID)
		if err != nil {
			return nil, false, err
		}
		if done {
			return nil, false, nil
		}
	}

	if !automation.EvaluateAll(r.Conditions, subj) {
		log.Debugf("automation %q: conditions not met", r.Name)
		if !s.logSkipped {
			return nil, false, nil
		}
		exec, err := s.record(ctx, r, subj, evt, automation.StatusSkipped, "", nil, "condições não atendidas")
		return exec, false, err
	}
	if r.IsNoOp() {
		return nil, false, nil
	}

	outcomes := s.dispatcher.Dispatch(ctx, r, subj)
	status, errMsg := automation.Summarize(outcomes)
	exec, err := s.record(ctx, r, subj, evt, status, errMsg, outcomes, "")
	if err != nil {
		return nil, true, err
	}
	if err := s.enqueuePending(ctx, exec, r, outcomes); err != nil {
		return exec, true, err
	}
	log.Infof("automation %q fired: %s", r.Name, status)
	return exec, true, nil
}

func (s *AutomationService) record(ctx context.Context, r *automation.Rule, subj *automation.Subject, evt automation.Event, status automation.Status, errMsg string, outcomes []automation.ActionOutcome, reason string) (*models.AutomationExecution, error) {
	if outcomes == nil {
		outcomes = []automation.ActionOutcome{}
	}
	payload, err := json.Marshal(automation.Result{Event: evt, Outcomes: outcomes, Reason: reason})
	if err != nil {
		return nil, fmt.Errorf("encode execution result: %w", err)
	}
	exec := &models.AutomationExecution{
		AutomationID: r.ID,
		ClientID:     subj.ID,
		UserID:       r.UserID,
		TriggerType:  string(evt.Type),
		Status:       string(status),
		Result:       datatypes.JSON(payload),
		Error:        errMsg,
		ExecutedAt:   s.now(),
	}
	if err := s.db.WithContext(context.WithoutCancel(ctx)).Create(exec).Error; err != nil {
		return nil, fmt.Errorf("write execution record: %w", err)
	}
	metrics.ObserveExecution(string(evt.Type), string(status))
	return exec, nil
}

func (s *AutomationService) enqueuePending(ctx context.Context, exec *models.AutomationExecution, r *automation.Rule, outcomes []automation.ActionOutcome) error {
	var items []*models.PendingAction
	for _, o := range outcomes {
		if o.Status != automation.StatusPending {
			continue
		}
		action := r.Actions[o.Index]
		raw, err := json.Marshal(automation.EncodeAction(action))
		if err != nil {
			return fmt.Errorf("encode pending action: %w", err)
		}
		items = append(items, &models.PendingAction{
			ExecutionID:  exec.ID,
			AutomationID: r.ID,
			ClientID:     exec.ClientID,
			ActionIndex:  o.Index,
			Action:       datatypes.JSON(raw),
			RunAt:        exec.ExecutedAt.Add(action.Delay()),
			Status:       models.PendingStatusWaiting,
		})
	}
	if len(items) == 0 {
		return nil
	}
	if err := s.queue.Enqueue(context.WithoutCancel(ctx), items); err != nil {
		msg := "falha ao agendar ação: " + err.Error()
		if dbErr := s.db.Model(exec).Updates(map[string]interface{}{"status": string(automation.StatusError), "erro": msg}).Error; dbErr != nil {
			s.logger.Warnf("automation: mark execution %d failed: %v", exec.ID, dbErr)
		}
		exec.Status, exec.Error = string(automation.StatusError), msg
		return err
	}
	return nil
}

func (s *AutomationService) executedToday(ctx context.Context, ruleID, clientID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.AutomationExecution{}).
		Where("automacao_id = ? AND cliente_id = ? AND executado_em >= ? AND status <> ?",
			ruleID, clientID, utils.StartOfDay(s.now()), string(automation.StatusSkipped)).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check execution history: %w", err)
	}
	return count > 0, nil
}

// SubmitEvent 处理外部提交的单个事件，只评估调用者自己的规则
func (s *AutomationService) SubmitEvent(ctx context.Context, userID uint, req *AutomationEventRequest) (*EventResult, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request required", ErrInvalidInput)
	}
	trigger, err := automation.ParseTriggerType(req.Event)
	if err != nil {
		return nil, err
	}
	return s.HandleEvent(ctx, automation.Event{
		Type:          trigger,
		UserID:        userID,
		ClientID:      req.ClientID,
		Days:          req.Days,
		FromStatus:    req.FromStatus,
		ToStatus:      req.ToStatus,
		AppointmentID: req.AppointmentID,
		OccurredAt:    s.now(),
	})
}

// BatchRun evaluates one event over a list of clients. A dry run only reports
// which rules would fire; it writes nothing and runs no action.
func (s *AutomationService) BatchRun(ctx context.Context, userID uint, req *AutomationBatchRunRequest) (*AutomationBatchRunResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request required", ErrInvalidInput)
	}
	trigger, err := automation.ParseTriggerType(req.Event)
	if err != nil {
		return nil, err
	}
	if len(req.ClientIDs) == 0 {
		return nil, fmt.Errorf("%w: cliente_ids vazio", ErrInvalidInput)
	}
	if len(req.ClientIDs) > MaxBatchClients {
		return nil, fmt.Errorf("%w: no máximo %d clientes por execução", ErrInvalidInput, MaxBatchClients)
	}

	resp := &AutomationBatchRunResponse{DryRun: req.DryRun}
	for _, clientID := range req.ClientIDs {
		evt := automation.Event{
			Type:       trigger,
			UserID:     userID,
			ClientID:   clientID,
			Days:       req.Days,
			FromStatus: req.FromStatus,
			ToStatus:   req.ToStatus,
			OccurredAt: s.now(),
		}
		item := AutomationBatchRunResult{ClientID: clientID, MatchedRules: []uint{}}
		if req.DryRun {
			rules, subj, err := s.match(ctx, evt)
			if err != nil {
				item.Error = err.Error()
			}
			for _, r := range rules {
				if !r.IsNoOp() && automation.EvaluateAll(r.Conditions, subj) {
					item.MatchedRules = append(item.MatchedRules, r.ID)
				}
			}
		} else {
			res, err := s.HandleEvent(ctx, evt)
			if err != nil {
				item.Error = err.Error()
			}
			if res != nil {
				item.Fired = res.Fired
				for _, e := range res.Executions {
					if e.Status != string(automation.StatusSkipped) {
						item.MatchedRules = append(item.MatchedRules, e.AutomationID)
					}
				}
			}
		}
		resp.Matches += len(item.MatchedRules)
		resp.ClientsProcessed++
		resp.Results = append(resp.Results, item)
	}
	return resp, nil
}

// ListRules 返回规则列表
func (s *AutomationService) ListRules(ctx context.Context, userID uint, req *AutomationListRequest) ([]models.Automation, error) {
	q := s.db.WithContext(ctx).Scopes(ownedBy(userID))
	if req != nil {
		if req.TriggerType != "" {
			trigger, err := automation.ParseTriggerType(req.TriggerType)
			if err != nil {
				return nil, err
			}
			q = q.Where("trigger_tipo = ?", string(trigger))
		}
		if req.Active != nil {
			q = q.Where("ativo = ?", *req.Active)
		}
	}
	var rules []models.Automation
	if err := q.Order("id DESC").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("list automations: %w", err)
	}
	return rules, nil
}

func (s *AutomationService) GetRule(ctx context.Context, userID, id uint) (*models.Automation, error) {
	var rule models.Automation
	err := s.db.WithContext(ctx).Scopes(ownedBy(userID)).First(&rule, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get automation: %w", err)
	}
	return &rule, nil
}

// CreateRule validates and stores a rule in its normalized form.
func (s *AutomationService) CreateRule(ctx context.Context, userID uint, req *AutomationRuleRequest) (*models.Automation, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request required", automation.ErrInvalidRule)
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	row := &models.Automation{UserID: userID, Description: req.Description, Active: active}
	if err := applyDefinition(row, req); err != nil {
		return nil, err
	}
	row.CreatedAt, row.UpdatedAt = s.now(), s.now()
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, fmt.Errorf("create automation: %w", err)
	}
	s.logger.Infof("Created automation %d (%s)", row.ID, row.Name)
	return row, nil
}

// UpdateRule replaces name, trigger, conditions and actions of a rule.
func (s *AutomationService) UpdateRule(ctx context.Context, userID, id uint, req *AutomationRuleRequest) (*models.Automation, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request required", automation.ErrInvalidRule)
	}
	row, err := s.GetRule(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := applyDefinition(row, req); err != nil {
		return nil, err
	}
	row.Description = req.Description
	if req.Active != nil {
		row.Active = *req.Active
	}
	row.UpdatedAt = s.now()
	if err := s.db.WithContext(ctx).Save(row).Error; err != nil {
		return nil, fmt.Errorf("update automation: %w", err)
	}
	return row, nil
}

// DeleteRule removes the rule; its execution records are kept.
func (s *AutomationService) DeleteRule(ctx context.Context, userID, id uint) error {
	result := s.db.WithContext(ctx).Scopes(ownedBy(userID)).Delete(&models.Automation{}, id)
	if result.Error != nil {
		return fmt.Errorf("delete automation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRuleNotFound
	}
	// 规则删除后不再执行其延迟动作
	if err := s.db.WithContext(ctx).Model(&models.PendingAction{}).
		Where("automacao_id = ? AND status = ?", id, models.PendingStatusWaiting).
		Update("status", models.PendingStatusCancelled).Error; err != nil {
		s.logger.Warnf("automation %d: cancel pending actions failed: %v", id, err)
	}
	return nil
}

// ToggleRule sets ativo; a nil value flips it.
func (s *AutomationService) ToggleRule(ctx context.Context, userID, id uint, active *bool) (*models.Automation, error) {
	row, err := s.GetRule(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	next := !row.Active
	if active != nil {
		next = *active
	}
	if err := s.db.WithContext(ctx).Model(row).Updates(map[string]interface{}{
		"ativo":      next,
		"updated_at": s.now(),
	}).Error; err != nil {
		return nil, fmt.Errorf("toggle automation: %w", err)
	}
	row.Active = next
	return row, nil
}

// ListExecutions returns the execution log newest first. Rules or clients
// removed since are rendered as "removida"/"removido".
func (s *AutomationService) ListExecutions(ctx context.Context, userID uint, req *ExecutionListRequest) ([]ExecutionView, int64, error) {
	if req == nil {
		req = &ExecutionListRequest{}
	}
	page, pageSize := normalizePage(req.Page, req.PageSize)

	q := s.db.WithContext(ctx).Table("automacao_execucoes AS e")
	if userID != 0 {
		q = q.Where("e.user_id = ?", userID)
	}
	if req.AutomationID != 0 {
		q = q.Where("e.automacao_id = ?", req.AutomationID)
	}
	if req.ClientID != 0 {
		q = q.Where("e.cliente_id = ?", req.ClientID)
	}
	if req.Status != "" {
		q = q.Where("e.status = ?", req.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count executions: %w", err)
	}

	var rows []struct {
		models.AutomationExecution
		RuleName   *string
		ClientName *string
	}
	if err := q.Select("e.*, a.nome AS rule_name, c.nome AS client_name").
		Joins("LEFT JOIN automacoes a ON a.id = e.automacao_id").
		Joins("LEFT JOIN clientes c ON c.id = e.cliente_id AND c.deleted_at IS NULL").
		Order("e.executado_em DESC, e.id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Scan(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("list executions: %w", err)
	}

	views := make([]ExecutionView, 0, len(rows))
	for _, r := range rows {
		v := ExecutionView{AutomationExecution: r.AutomationExecution, RuleName: "removida", ClientName: "removido"}
		if r.RuleName != nil {
			v.RuleName = *r.RuleName
		}
		if r.ClientName != nil {
			v.ClientName = *r.ClientName
		}
		views = append(views, v)
	}
	return views, total, nil
}

func applyDefinition(row *models.Automation, req *AutomationRuleRequest) error {
	rule, err := automation.Compile(automation.Definition{
		Name:          req.Name,
		TriggerType:   req.TriggerType,
		TriggerConfig: req.TriggerConfig,
		Conditions:    req.Conditions,
		Actions:       req.Actions,
	})
	if err != nil {
		return err
	}
	tc, conds, actions, err := rule.Encode()
	if err != nil {
		return fmt.Errorf("%w: %v", automation.ErrInvalidRule, err)
	}
	row.Name = rule.Name
	row.TriggerType = string(rule.Trigger)
	row.TriggerConfig = datatypes.JSON(tc)
	row.Conditions = datatypes.JSON(conds)
	row.Actions = datatypes.JSON(actions)
	return nil
}

func compileRow(row *models.Automation) (*automation.Rule, error) {
	return automation.Compile(automation.Definition{
		ID:            row.ID,
		UserID:        row.UserID,
		Name:          row.Name,
		Active:        row.Active,
		TriggerType:   strings.TrimSpace(row.TriggerType),
		TriggerConfig: json.RawMessage(row.TriggerConfig),
		Conditions:    json.RawMessage(row.Conditions),
		Actions:       json.RawMessage(row.Actions),
	})
}
