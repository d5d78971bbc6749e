package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"crmflow/internal/automation"
	"crmflow/internal/metrics"
	"crmflow/internal/models"
	"crmflow/pkg/utils"
)

// Collaborators groups the stores the dispatcher writes to.
type Collaborators struct {
	Outreach      Outreach
	Clients       ClientStore
	Tasks         TaskStore
	Tags          TagStore
	Notifications NotificationStore
	Appointments  AppointmentStore
	Reminders     ReminderStore
}

// ActionDispatcher runs a rule's actions in order. Actions are independent:
// one failing does not stop or roll back the others.
type ActionDispatcher struct {
	c       Collaborators
	timeout time.Duration
	logger  *logrus.Logger
	now     func() time.Time
}

func NewActionDispatcher(c Collaborators, timeout time.Duration, logger *logrus.Logger) *ActionDispatcher {
	if logger == nil {
		logger = logrus.New()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ActionDispatcher{c: c, timeout: timeout, logger: logger, now: time.Now}
}

// Dispatch runs every action of r against subj. Actions with a delay are not
// run; they come back as pending outcomes for the caller to enqueue.
func (d *ActionDispatcher) Dispatch(ctx context.Context, r *automation.Rule, subj *automation.Subject) []automation.ActionOutcome {
	outcomes := make([]automation.ActionOutcome, 0, len(r.Actions))
	for i, action := range r.Actions {
		if delay := action.Delay(); delay > 0 {
			outcomes = append(outcomes, automation.ActionOutcome{
				Index:  i,
				Type:   action.Kind(),
				Status: automation.StatusPending,
				Detail: "agendado para " + utils.FormatTime(d.now().Add(delay)),
			})
			continue
		}
		outcomes = append(outcomes, d.Run(ctx, r.ID, i, action, subj))
	}
	return outcomes
}

// Run executes one action now under the per-action timeout.
func (d *ActionDispatcher) Run(ctx context.Context, ruleID uint, index int, action automation.Action, subj *automation.Subject) automation.ActionOutcome {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	out := automation.ActionOutcome{Index: index, Type: action.Kind(), Attempts: 1}
	detail, attempts, err := d.execute(ctx, ruleID, action, subj)
	if attempts > 0 {
		out.Attempts = attempts
	}
	if err != nil {
		out.Status = automation.StatusError
		out.Error = err.Error()
		d.logger.WithFields(logrus.Fields{
			"automation_id": ruleID,
			"client_id":     subj.ID,
			"action":        action.Kind(),
		}).Warnf("automation action failed: %v", err)
	} else {
		out.Status = automation.StatusSuccess
		out.Detail = detail
	}
	metrics.ObserveAction(string(action.Kind()), string(out.Status))
	return out
}

func (d *ActionDispatcher) execute(ctx context.Context, ruleID uint, action automation.Action, subj *automation.Subject) (string, int, error) {
	vars := subj.Variables()
	origin := &ruleID
	now := d.now()

	switch a := action.(type) {
	case automation.SendEmail:
		if d.c.Outreach == nil {
			return "", 0, fmt.Errorf("envio de email não configurado")
		}
		res, err := d.c.Outreach.Deliver(ctx, OutreachRequest{
			Channel:       models.ChannelEmail,
			UserID:        subj.UserID,
			ClientID:      subj.ID,
			AutomationID:  origin,
			TemplateID:    a.TemplateID,
			Subject:       a.Subject,
			Body:          a.Body,
			Recipient:     subj.Email,
			RecipientName: subj.Name,
			Vars:          vars,
		})
		if err != nil {
			return "", 0, err
		}
		return "email enviado para " + res.Recipient, res.Attempts, nil

	case automation.SendWhatsApp:
		if d.c.Outreach == nil {
			return "", 0, fmt.Errorf("envio de WhatsApp não configurado")
		}
		res, err := d.c.Outreach.Deliver(ctx, OutreachRequest{
			Channel:      models.ChannelWhatsApp,
			UserID:       subj.UserID,
			ClientID:     subj.ID,
			AutomationID: origin,
			TemplateID:   a.TemplateID,
			Body:         a.Message,
			Recipient:    subj.Phone,
			Vars:         vars,
		})
		if err != nil {
			return "", 0, err
		}
		return "whatsapp enviado para " + res.Recipient, res.Attempts, nil

	case automation.CreateTask:
		due := now.AddDate(0, 0, a.DueInDays)
		clientID := subj.ID
		task := &models.Task{
			UserID:       subj.UserID,
			ClientID:     &clientID,
			Title:        automation.Render(a.Title, vars),
			Description:  automation.Render(a.Description, vars),
			Type:         a.Type,
			Priority:     a.Priority,
			DueDate:      &due,
			AutomationID: origin,
		}
		if err := d.c.Tasks.CreateTask(ctx, task); err != nil {
			return "", 0, err
		}
		return fmt.Sprintf("tarefa %d criada", task.ID), 0, nil

	case automation.ChangeStatus:
		if err := d.c.Clients.SetStatus(ctx, subj.ID, a.Status); err != nil {
			return "", 0, err
		}
		return "status alterado para " + a.Status, 0, nil

	case automation.AddTag:
		created, err := d.c.Tags.AttachTag(ctx, subj.UserID, subj.ID, a.Tag)
		if err != nil {
			return "", 0, err
		}
		if !created {
			return "tag " + a.Tag + " já aplicada", 0, nil
		}
		return "tag " + a.Tag + " adicionada", 0, nil

	case automation.ScheduleFollowUp:
		appt := &models.Appointment{
			UserID:       subj.UserID,
			ClientID:     subj.ID,
			Title:        automation.Render(a.Title, vars),
			Type:         a.Type,
			ScheduledAt:  now.AddDate(0, 0, a.InDays),
			AutomationID: origin,
		}
		if err := d.c.Appointments.ScheduleAppointment(ctx, appt); err != nil {
			return "", 0, err
		}
		return "follow-up agendado para " + utils.FormatDate(appt.ScheduledAt), 0, nil

	case automation.SendNotification:
		clientID := subj.ID
		n := &models.Notification{
			UserID:   subj.UserID,
			ClientID: &clientID,
			Title:    automation.Render(a.Title, vars),
			Message:  automation.Render(a.Message, vars),
			Type:     a.Type,
		}
		if err := d.c.Notifications.Notify(ctx, n); err != nil {
			return "", 0, err
		}
		return fmt.Sprintf("notificação %d criada", n.ID), 0, nil

	case automation.CreateBillingReminder:
		remindOn := now.AddDate(0, 0, a.InDays)
		if subj.DueDate != nil {
			remindOn = subj.DueDate.AddDate(0, 0, -a.DaysBefore)
		}
		msg := a.Message
		if msg == "" {
			msg = "Lembrete de cobrança para {{nome}}"
		}
		r := &models.BillingReminder{
			UserID:       subj.UserID,
			ClientID:     subj.ID,
			RemindOn:     utils.StartOfDay(remindOn),
			Message:      automation.Render(msg, vars),
			Channel:      a.Channel,
			AutomationID: origin,
		}
		if err := d.c.Reminders.CreateReminder(ctx, r); err != nil {
			return "", 0, err
		}
		return "lembrete para " + utils.FormatDate(r.RemindOn), 0, nil

	default:
		return "", 0, fmt.Errorf("%w: ação não suportada %s", automation.ErrInvalidRule, action.Kind())
	}
}
