package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"crmflow/internal/config"
	"crmflow/internal/database"
	"crmflow/internal/models"
	"crmflow/pkg/mailer"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:svc_"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fakeEmailSender struct {
	mu       sync.Mutex
	sent     []mailer.Message
	failures int // 前 N 次返回 err
	err      error
	calls    int
	onSend   func()
}

func (f *fakeEmailSender) Send(_ context.Context, msg mailer.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.onSend != nil {
		f.onSend()
	}
	if f.err != nil && (f.failures == 0 || f.calls <= f.failures) {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fakeWhatsApp struct {
	mu   sync.Mutex
	sent map[string]string
	err  error
}

func (f *fakeWhatsApp) SendText(_ context.Context, phone, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if f.sent == nil {
		f.sent = map[string]string{}
	}
	f.sent[phone] = text
	return "wamid.1", nil
}

type permanentErr struct{}

func (permanentErr) Error() string   { return "recipient rejected" }
func (permanentErr) Temporary() bool { return false }

var errSMTPDown = errors.New("smtp: connection refused")

// testEngine wires the whole automation stack on one sqlite database.
type testEngine struct {
	db          *gorm.DB
	cfg         config.AutomationConfig
	clients     *ClientService
	tags        *TagService
	tasks       *TaskService
	templates   *TemplateService
	outreach    *OutreachService
	automation  *AutomationService
	dispatcher  *ActionDispatcher
	worker      *PendingActionWorker
	email       *fakeEmailSender
	whatsapp    *fakeWhatsApp
	appointment *AppointmentService
}

func newTestEngine(t *testing.T, mutate ...func(*config.AutomationConfig)) *testEngine {
	t.Helper()
	db := newTestDB(t)
	logger := quietLogger()

	cfg := config.GetDefaultConfig().Automation
	cfg.Retry.InitialInterval = time.Millisecond
	cfg.Retry.MaxInterval = 2 * time.Millisecond
	for _, m := range mutate {
		m(&cfg)
	}

	e := &testEngine{
		db:          db,
		cfg:         cfg,
		clients:     NewClientService(db, logger),
		tags:        NewTagService(db, logger),
		tasks:       NewTaskService(db, logger),
		templates:   NewTemplateService(db, logger),
		email:       &fakeEmailSender{},
		whatsapp:    &fakeWhatsApp{},
		appointment: NewAppointmentService(db, logger),
	}
	e.outreach = NewOutreachService(db, e.templates, cfg, logger)
	e.outreach.SetEmailSender(e.email)
	e.outreach.SetWhatsAppSender(e.whatsapp)

	e.dispatcher = NewActionDispatcher(Collaborators{
		Outreach:      e.outreach,
		Clients:       e.clients,
		Tasks:         e.tasks,
		Tags:          e.tags,
		Notifications: NewNotificationService(db, nil, logger),
		Appointments:  e.appointment,
		Reminders:     NewReminderService(db, logger),
	}, cfg.ActionTimeout, logger)
	e.automation = NewAutomationService(db, e.clients, e.dispatcher, cfg, logger)
	e.worker = NewPendingActionWorker(db, nil, e.dispatcher, e.clients, cfg, logger)
	e.clients.SetAutomationService(e.automation)
	e.appointment.SetAutomationService(e.automation)
	return e
}

func (e *testEngine) createClient(t *testing.T, c *models.Client) *models.Client {
	t.Helper()
	if c.UserID == 0 {
		c.UserID = 1
	}
	if err := e.db.Create(c).Error; err != nil {
		t.Fatalf("seed client: %v", err)
	}
	return c
}

func (e *testEngine) createRule(t *testing.T, req *AutomationRuleRequest) *models.Automation {
	t.Helper()
	rule, err := e.automation.CreateRule(context.Background(), 1, req)
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}
	return rule
}

func rawJSON(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func uintPtr(v uint) *uint { return &v }

func timePtr(t time.Time) *time.Time { return &t }

func boolPtr(b bool) *bool { return &b }
