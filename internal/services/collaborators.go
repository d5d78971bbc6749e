package services

import (
	"context"

	"crmflow/internal/automation"
	"crmflow/internal/models"
	"crmflow/pkg/mailer"
)

// EmailSender delivers one rendered email.
type EmailSender interface {
	Send(ctx context.Context, msg mailer.Message) error
}

// WhatsAppSender delivers one text message and returns the provider id.
type WhatsAppSender interface {
	SendText(ctx context.Context, phone, text string) (string, error)
}

// Outreach renders and sends a message, recording it in the history.
type Outreach interface {
	Deliver(ctx context.Context, req OutreachRequest) (*Delivery, error)
}

// ClientStore is what the engine needs from the client records.
type ClientStore interface {
	Subject(ctx context.Context, clientID uint) (*automation.Subject, error)
	SetStatus(ctx context.Context, clientID uint, status string) error
}

// TemplateStore resolves templates for outreach.
type TemplateStore interface {
	Resolve(ctx context.Context, userID, templateID uint) (*models.Template, error)
}

type TaskStore interface {
	CreateTask(ctx context.Context, task *models.Task) error
}

// TagStore attaches a tag by name; created is false when the pair already existed.
type TagStore interface {
	AttachTag(ctx context.Context, userID, clientID uint, name string) (created bool, err error)
}

type NotificationStore interface {
	Notify(ctx context.Context, n *models.Notification) error
}

type AppointmentStore interface {
	ScheduleAppointment(ctx context.Context, a *models.Appointment) error
}

type ReminderStore interface {
	CreateReminder(ctx context.Context, r *models.BillingReminder) error
}
