package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"crmflow/internal/automation"
	"crmflow/internal/models"
	"crmflow/pkg/utils"
)

// EventHandler receives lifecycle events; AutomationService implements it.
type EventHandler interface {
	HandleEvent(ctx context.Context, evt automation.Event) (*EventResult, error)
}

// ClientService 客户管理服务，状态变化时发出自动化事件
type ClientService struct {
	db         *gorm.DB
	logger     *logrus.Logger
	tags       *TagService
	automation EventHandler
	now        func() time.Time
}

// NewClientService 创建客户服务
func NewClientService(db *gorm.DB, logger *logrus.Logger) *ClientService {
	if logger == nil {
		logger = logrus.New()
	}
	return &ClientService{
		db:     db,
		logger: logger,
		tags:   NewTagService(db, logger),
		now:    time.Now,
	}
}

// SetAutomationService 注入自动化引擎
func (s *ClientService) SetAutomationService(h EventHandler) {
	s.automation = h
}

// ClientCreateRequest 创建客户请求
type ClientCreateRequest struct {
	Name          string     `json:"nome" binding:"required"`
	Email         string     `json:"email"`
	Phone         string     `json:"telefone"`
	Company       string     `json:"empresa"`
	City          string     `json:"cidade"`
	Status        string     `json:"status"`
	PaymentStatus string     `json:"status_pagamento"`
	PlanValue     *float64   `json:"valor_plano"`
	DueDate       *time.Time `json:"data_vencimento"`
	Origin        string     `json:"origem"`
	Notes         string     `json:"observacoes"`
	Tags          []string   `json:"tags"`
}

// ClientUpdateRequest 更新客户请求；status/status_pagamento 变化同样触发事件
type ClientUpdateRequest struct {
	Name          *string    `json:"nome"`
	Email         *string    `json:"email"`
	Phone         *string    `json:"telefone"`
	Company       *string    `json:"empresa"`
	City          *string    `json:"cidade"`
	Status        *string    `json:"status"`
	PaymentStatus *string    `json:"status_pagamento"`
	PlanValue     *float64   `json:"valor_plano"`
	DueDate       *time.Time `json:"data_vencimento"`
	Origin        *string    `json:"origem"`
	Notes         *string    `json:"observacoes"`
}

// ClientListRequest 客户列表请求
type ClientListRequest struct {
	Page          int      `form:"page,default=1"`
	PageSize      int      `form:"page_size,default=20"`
	Search        string   `form:"search"`
	Status        []string `form:"status"`
	PaymentStatus []string `form:"status_pagamento"`
	Tag           string   `form:"tag"`
	SortBy        string   `form:"sort_by,default=created_at"`
	SortOrder     string   `form:"sort_order,default=desc"`
}

// PaymentUpdateRequest 付款状态更新
type PaymentUpdateRequest struct {
	Status    string     `json:"status_pagamento" binding:"required"`
	DueDate   *time.Time `json:"data_vencimento"`
	PlanValue *float64   `json:"valor_plano"`
}

// ContactRequest 记录一次联系
type ContactRequest struct {
	Channel string `json:"canal"`
	Summary string `json:"resumo"`
}

// CreateClient 创建客户并发出 cliente_criado
func (s *ClientService) CreateClient(ctx context.Context, userID uint, req *ClientCreateRequest) (*models.Client, error) {
	if req == nil || strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: nome é obrigatório", ErrInvalidInput)
	}
	status, err := normalizeClientStatus(req.Status, models.ClientStatusLead)
	if err != nil {
		return nil, err
	}
	payment, err := normalizePaymentStatus(req.PaymentStatus, models.PaymentStatusPending)
	if err != nil {
		return nil, err
	}
	client := &models.Client{
		UserID:        userID,
		Name:          strings.TrimSpace(req.Name),
		Email:         strings.TrimSpace(req.Email),
		Phone:         strings.TrimSpace(req.Phone),
		Company:       req.Company,
		City:          req.City,
		Status:        status,
		PaymentStatus: payment,
		PlanValue:     req.PlanValue,
		DueDate:       req.DueDate,
		Origin:        req.Origin,
		Notes:         req.Notes,
	}
	if err := s.db.WithContext(ctx).Create(client).Error; err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	for _, tag := range req.Tags {
		if _, err := s.tags.AttachTag(ctx, userID, client.ID, tag); err != nil {
			s.logger.Warnf("client %d: attach tag %q failed: %v", client.ID, tag, err)
		}
	}
	s.logger.Infof("Created client %d (%s)", client.ID, client.Name)

	s.emit(ctx, automation.Event{
		Type:     automation.TriggerClientCreated,
		UserID:   userID,
		ClientID: client.ID,
	})
	return s.GetClient(ctx, userID, client.ID)
}

// GetClient 根据ID获取客户（含标签）
func (s *ClientService) GetClient(ctx context.Context, userID, id uint) (*models.Client, error) {
	var client models.Client
	err := s.db.WithContext(ctx).Scopes(ownedBy(userID)).First(&client, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrClientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	if client.Tags, err = s.tags.ClientTags(ctx, client.ID); err != nil {
		return nil, err
	}
	return &client, nil
}

// ListClients 分页查询客户
func (s *ClientService) ListClients(ctx context.Context, userID uint, req *ClientListRequest) ([]models.Client, int64, error) {
	if req == nil {
		req = &ClientListRequest{}
	}
	page, pageSize := normalizePage(req.Page, req.PageSize)

	q := s.db.WithContext(ctx).Model(&models.Client{}).Scopes(ownedBy(userID))
	if req.Search != "" {
		like := "%" + strings.ToLower(req.Search) + "%"
		q = q.Where("LOWER(nome) LIKE ? OR LOWER(email) LIKE ? OR LOWER(empresa) LIKE ?", like, like, like)
	}
	if len(req.Status) > 0 {
		q = q.Where("status IN ?", req.Status)
	}
	if len(req.PaymentStatus) > 0 {
		q = q.Where("status_pagamento IN ?", req.PaymentStatus)
	}
	if req.Tag != "" {
		q = q.Where("id IN (?)", s.db.Table("cliente_tags").
			Select("cliente_tags.cliente_id").
			Joins("JOIN tags ON tags.id = cliente_tags.tag_id").
			Where("tags.nome = ?", req.Tag))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count clients: %w", err)
	}

	var clients []models.Client
	if err := q.Order(clientOrder(req.SortBy, req.SortOrder)).
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&clients).Error; err != nil {
		return nil, 0, fmt.Errorf("list clients: %w", err)
	}

	ids := make([]uint, 0, len(clients))
	for _, c := range clients {
		ids = append(ids, c.ID)
	}
	byClient, err := s.tags.tagsFor(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range clients {
		clients[i].Tags = byClient[clients[i].ID]
	}
	return clients, total, nil
}

// UpdateClient 更新客户信息
func (s *ClientService) UpdateClient(ctx context.Context, userID, id uint, req *ClientUpdateRequest) (*models.Client, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request required", ErrInvalidInput)
	}
	before, err := s.GetClient(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, fmt.Errorf("%w: nome é obrigatório", ErrInvalidInput)
		}
		updates["nome"] = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		updates["email"] = strings.TrimSpace(*req.Email)
	}
	if req.Phone != nil {
		updates["telefone"] = strings.TrimSpace(*req.Phone)
	}
	if req.Company != nil {
		updates["empresa"] = *req.Company
	}
	if req.City != nil {
		updates["cidade"] = *req.City
	}
	if req.Origin != nil {
		updates["origem"] = *req.Origin
	}
	if req.Notes != nil {
		updates["observacoes"] = *req.Notes
	}
	if req.PlanValue != nil {
		updates["valor_plano"] = *req.PlanValue
	}
	if req.DueDate != nil {
		updates["data_vencimento"] = *req.DueDate
	}
	if req.Status != nil {
		status, err := normalizeClientStatus(*req.Status, before.Status)
		if err != nil {
			return nil, err
		}
		updates["status"] = status
	}
	if req.PaymentStatus != nil {
		payment, err := normalizePaymentStatus(*req.PaymentStatus, before.PaymentStatus)
		if err != nil {
			return nil, err
		}
		updates["status_pagamento"] = payment
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&models.Client{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to update client: %w", err)
		}
	}
	s.logger.Infof("Updated client %d", id)

	after, err := s.GetClient(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	s.emitTransitions(ctx, before, after)
	return after, nil
}

// DeleteClient 软删除客户；执行记录保留
func (s *ClientService) DeleteClient(ctx context.Context, userID, id uint) error {
	result := s.db.WithContext(ctx).Scopes(ownedBy(userID)).Delete(&models.Client{}, id)
	if result.Error != nil {
		return fmt.Errorf("delete client: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrClientNotFound
	}
	return nil
}

// ChangeStatus 变更管道状态并发出 status_mudou
func (s *ClientService) ChangeStatus(ctx context.Context, userID, id uint, status string) (*models.Client, error) {
	return s.UpdateClient(ctx, userID, id, &ClientUpdateRequest{Status: &status})
}

// UpdatePayment 更新付款状态；Inadimplente -> Adimplente 时发出 pagamento_regularizado
func (s *ClientService) UpdatePayment(ctx context.Context, userID, id uint, req *PaymentUpdateRequest) (*models.Client, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request required", ErrInvalidInput)
	}
	return s.UpdateClient(ctx, userID, id, &ClientUpdateRequest{
		PaymentStatus: &req.Status,
		DueDate:       req.DueDate,
		PlanValue:     req.PlanValue,
	})
}

// LogContact 记录联系并刷新 ultimo_contato
func (s *ClientService) LogContact(ctx context.Context, userID, id uint, req *ContactRequest) (*models.ContactLog, error) {
	client, err := s.GetClient(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		req = &ContactRequest{}
	}
	now := s.now()
	entry := &models.ContactLog{
		UserID:    client.UserID,
		ClientID:  client.ID,
		Channel:   req.Channel,
		Summary:   req.Summary,
		CreatedAt: now,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(entry).Error; err != nil {
			return err
		}
		return tx.Model(&models.Client{}).Where("id = ?", client.ID).Update("ultimo_contato", now).Error
	})
	if err != nil {
		return nil, fmt.Errorf("log contact: %w", err)
	}
	return entry, nil
}

// SetStatus 由 mudar_status 动作调用，不再发出事件以避免规则循环
func (s *ClientService) SetStatus(ctx context.Context, clientID uint, status string) error {
	status, err := normalizeClientStatus(status, "")
	if err != nil {
		return err
	}
	result := s.db.WithContext(ctx).Model(&models.Client{}).Where("id = ?", clientID).Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("set status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrClientNotFound
	}
	return nil
}

// Subject 构造规则评估用的客户快照，含派生的天数字段
func (s *ClientService) Subject(ctx context.Context, clientID uint) (*automation.Subject, error) {
	client, err := s.GetClient(ctx, 0, clientID)
	if err != nil {
		return nil, err
	}
	return s.subjectOf(client), nil
}

func (s *ClientService) subjectOf(c *models.Client) *automation.Subject {
	now := s.now()
	subj := &automation.Subject{
		ID:            c.ID,
		UserID:        c.UserID,
		Name:          c.Name,
		Email:         c.Email,
		Phone:         c.Phone,
		Company:       c.Company,
		City:          c.City,
		Status:        c.Status,
		PaymentStatus: c.PaymentStatus,
		Origin:        c.Origin,
		PlanValue:     c.PlanValue,
		DueDate:       c.DueDate,
		Tags:          c.Tags,
	}
	if d := daysOverdue(c, now); d != nil {
		subj.DaysOverdue = d
	}
	since := daysSinceContact(c, now)
	subj.DaysSinceContact = &since
	return subj
}

// daysOverdue 无到期日时缺省；已付或未到期时为 0
func daysOverdue(c *models.Client, now time.Time) *int {
	if c.DueDate == nil {
		return nil
	}
	days := 0
	if c.PaymentStatus != models.PaymentStatusUpToDate {
		if d := utils.DaysBetween(*c.DueDate, now); d > 0 {
			days = d
		}
	}
	return &days
}

func daysSinceContact(c *models.Client, now time.Time) int {
	last := c.CreatedAt
	if c.LastContactAt != nil {
		last = *c.LastContactAt
	}
	if d := utils.DaysBetween(last, now); d > 0 {
		return d
	}
	return 0
}

func (s *ClientService) emitTransitions(ctx context.Context, before, after *models.Client) {
	if before.Status != after.Status {
		s.emit(ctx, automation.Event{
			Type:       automation.TriggerStatusChanged,
			UserID:     after.UserID,
			ClientID:   after.ID,
			FromStatus: before.Status,
			ToStatus:   after.Status,
		})
	}
	if before.PaymentStatus == models.PaymentStatusOverdue && after.PaymentStatus == models.PaymentStatusUpToDate {
		s.emit(ctx, automation.Event{
			Type:     automation.TriggerPaymentRegularized,
			UserID:   after.UserID,
			ClientID: after.ID,
		})
	}
}

// emit 同步处理事件；引擎错误只记录日志，不影响客户写入
func (s *ClientService) emit(ctx context.Context, evt automation.Event) {
	if s.automation == nil {
		return
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = s.now()
	}
	if _, err := s.automation.HandleEvent(ctx, evt); err != nil {
		s.logger.WithFields(logrus.Fields{
			"event":     evt.Type,
			"client_id": evt.ClientID,
		}).Warnf("automation event failed: %v", err)
	}
}

func normalizeClientStatus(status, fallback string) (string, error) {
	status = strings.TrimSpace(status)
	if status == "" && fallback != "" {
		return fallback, nil
	}
	for _, known := range models.ClientStatuses {
		if strings.EqualFold(known, status) {
			return known, nil
		}
	}
	return "", fmt.Errorf("%w: status desconhecido %q", ErrInvalidInput, status)
}

func normalizePaymentStatus(status, fallback string) (string, error) {
	status = strings.TrimSpace(status)
	if status == "" && fallback != "" {
		return fallback, nil
	}
	for _, known := range models.PaymentStatuses {
		if strings.EqualFold(known, status) {
			return known, nil
		}
	}
	return "", fmt.Errorf("%w: status de pagamento desconhecido %q", ErrInvalidInput, status)
}

func clientOrder(sortBy, order string) string {
	col := "created_at"
	switch sortBy {
	case "nome", "status", "status_pagamento", "data_vencimento", "ultimo_contato", "updated_at":
		col = sortBy
	}
	if strings.EqualFold(order, "asc") {
		return col + " ASC"
	}
	return col + " DESC"
}
