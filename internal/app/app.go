package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"crmflow/internal/config"
	"crmflow/internal/database"
	"crmflow/internal/services"
	"crmflow/pkg/mailer"
	"crmflow/pkg/whatsapp"
)

// App holds every long-lived collaborator of the CRM process.
type App struct {
	Config *config.Config
	Logger *logrus.Logger
	DB     *gorm.DB
	Redis  *redis.Client

	Hub           *services.NotificationHub
	Clients       *services.ClientService
	Tags          *services.TagService
	Tasks         *services.TaskService
	Templates     *services.TemplateService
	Appointments  *services.AppointmentService
	Reminders     *services.ReminderService
	Notifications *services.NotificationService
	Outreach      *services.OutreachService
	Dispatcher    *services.ActionDispatcher
	Automation    *services.AutomationService
	Worker        *services.PendingActionWorker
	Scanner       *services.TriggerScanner
	Dashboard     *services.DashboardService
}

// Open connects postgres (and redis when the delayed queue uses it), then
// assembles the App.
func Open(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*App, error) {
	db, err := database.Open(cfg, "", logger)
	if err != nil {
		return nil, err
	}
	var rdb *redis.Client
	if strings.EqualFold(cfg.Queue.Driver, "redis") {
		if rdb, err = database.OpenRedis(ctx, cfg.Redis); err != nil {
			return nil, fmt.Errorf("delayed queue: %w", err)
		}
	}
	return New(cfg, db, rdb, logger), nil
}

// New wires services on an existing database. rdb may be nil.
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client, logger *logrus.Logger) *App {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	a := &App{Config: cfg, Logger: logger, DB: db, Redis: rdb}

	a.Hub = services.NewNotificationHub(logger)
	a.Tags = services.NewTagService(db, logger)
	a.Clients = services.NewClientService(db, logger)
	a.Tasks = services.NewTaskService(db, logger)
	a.Templates = services.NewTemplateService(db, logger)
	a.Appointments = services.NewAppointmentService(db, logger)
	a.Reminders = services.NewReminderService(db, logger)
	a.Dashboard = services.NewDashboardService(db, logger)

	a.Notifications = services.NewNotificationService(db, a.Hub, logger)
	if cfg.Slack.Enabled && cfg.Slack.WebhookURL != "" {
		a.Notifications.SetMirror(services.NewSlackMirror(cfg.Slack))
	}

	a.Outreach = services.NewOutreachService(db, a.Templates, cfg.Automation, logger)
	if cfg.Email.Enabled {
		a.Outreach.SetEmailSender(mailer.NewSMTPMailer(mailer.Config{
			Host:          cfg.Email.Host,
			Port:          cfg.Email.Port,
			Username:      cfg.Email.Username,
			Password:      cfg.Email.Password,
			From:          cfg.Email.From,
			FromName:      cfg.Email.FromName,
			StartTLS:      cfg.Email.StartTLS,
			SkipTLSVerify: cfg.Email.SkipTLSVerify,
		}))
	}
	if cfg.WhatsApp.Enabled {
		a.Outreach.SetWhatsAppSender(whatsapp.NewClient(&whatsapp.Config{
			BaseURL:       cfg.WhatsApp.BaseURL,
			PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
			Token:         cfg.WhatsApp.Token,
			CountryCode:   cfg.WhatsApp.CountryCode,
			Timeout:       cfg.WhatsApp.Timeout,
		}, logger))
	}

	a.Dispatcher = services.NewActionDispatcher(services.Collaborators{
		Outreach:      a.Outreach,
		Clients:       a.Clients,
		Tasks:         a.Tasks,
		Tags:          a.Tags,
		Notifications: a.Notifications,
		Appointments:  a.Appointments,
		Reminders:     a.Reminders,
	}, cfg.Automation.ActionTimeout, logger)

	var queue services.DelayQueue
	if rdb != nil {
		queue = services.NewRedisQueue(db, rdb, cfg.Queue.Key)
	}
	a.Automation = services.NewAutomationService(db, a.Clients, a.Dispatcher, cfg.Automation, logger)
	a.Automation.SetDelayQueue(queue)
	a.Worker = services.NewPendingActionWorker(db, queue, a.Dispatcher, a.Clients, cfg.Automation, logger)
	a.Scanner = services.NewTriggerScanner(db, a.Automation, cfg.Automation.Scanner, logger)

	// 引擎关闭时不再向规则发事件
	if cfg.Automation.Enabled {
		a.Clients.SetAutomationService(a.Automation)
		a.Appointments.SetAutomationService(a.Automation)
	}
	return a
}

// Start launches the notification hub, the delayed-action worker and the
// periodic trigger scanner. They stop when ctx is cancelled.
func (a *App) Start(ctx context.Context) error {
	go a.Hub.Run(ctx)
	if !a.Config.Automation.Enabled {
		a.Logger.Warn("automation engine disabled; worker and scanner not started")
		return nil
	}
	go a.Worker.Start(ctx)
	if a.Config.Automation.Scanner.Enabled {
		if err := a.Scanner.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close releases database and redis connections.
func (a *App) Close() error {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warnf("close redis: %v", err)
		}
	}
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
