package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/comunidad/backend/internal/logging"
	"github.com/comunidad/backend/internal/models"
)

// EmailMessage is one message addressed to every recipient at once.
type EmailMessage struct {
	To      []models.AdminUser
	Subject string
	HTML    string
	// Tags are forwarded to the provider for tracking, e.g. the item id.
	Tags map[string]string
}

// Mailer sends a message to a list of recipients.
type Mailer interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// NotifyResult reports how many admins the alert was sent to.
type NotifyResult struct {
	RecipientsNotified int
}

// NotificationService alerts the admins responsible for a province about new content.
type NotificationService struct {
	directory    AdminDirectory
	mailer       Mailer
	adminBaseURL string
	logger       *logrus.Entry
}

func NewNotificationService(directory AdminDirectory, mailer Mailer, adminBaseURL string, logger *logrus.Entry) *NotificationService {
	if logger == nil {
		logger = logging.Logger()
	}
	return &NotificationService{
		directory:    directory,
		mailer:       mailer,
		adminBaseURL: strings.TrimRight(strings.TrimSpace(adminBaseURL), "/"),
		logger:       logger,
	}
}

// NotifyAdmins looks up regional and general admins concurrently, merges them by email
// and sends one message to all of them.
func (s *NotificationService) NotifyAdmins(ctx context.Context, req models.NotificationRequest) (NotifyResult, error) {
	if s == nil || s.directory == nil || s.mailer == nil {
		return NotifyResult{}, errors.New("notification service is not initialized")
	}

	req.Normalize()
	if problems := req.Validate(); len(problems) > 0 {
		return NotifyResult{}, fmt.Errorf("%w: %s", ErrValidation, describeProblems(problems))
	}

	log := s.logger.WithFields(logging.Fields{
		"event":     "notify_admins",
		"item_type": string(req.ItemType),
		"item_id":   req.ItemID,
		"province":  req.Province,
	})

	recipients, err := s.lookupRecipients(ctx, req.Province)
	if err != nil {
		log.WithError(err).Error("admin directory lookup failed")
		return NotifyResult{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	if len(recipients) == 0 {
		log.Warn("no admins found for province")
		return NotifyResult{RecipientsNotified: 0}, nil
	}

	msg, err := s.composeMessage(req, recipients)
	if err != nil {
		log.WithError(err).Error("render notification failed")
		return NotifyResult{}, err
	}

	if err := s.mailer.Send(ctx, msg); err != nil {
		log.WithError(err).WithField("recipients", len(recipients)).Error("notification send failed")
		return NotifyResult{}, fmt.Errorf("%w: %w", ErrNotificationProvider, err)
	}

	log.WithField("recipients", len(recipients)).Info("admins notified")
	return NotifyResult{RecipientsNotified: len(recipients)}, nil
}

// lookupRecipients runs both directory queries and waits for both. General admins are
// merged last so their records win on duplicate emails.
func (s *NotificationService) lookupRecipients(ctx context.Context, province string) ([]models.AdminUser, error) {
	var regional, global []models.AdminUser

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		admins, err := s.directory.RegionalAdmins(gctx, province)
		if err != nil {
			return fmt.Errorf("regional admins: %w", err)
		}
		regional = admins
		return nil
	})
	g.Go(func() error {
		admins, err := s.directory.GlobalAdmins(gctx)
		if err != nil {
			return fmt.Errorf("global admins: %w", err)
		}
		global = admins
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return MergeRecipients(regional, global), nil
}

type notificationView struct {
	ItemType  string
	ItemID    string
	ItemName  string
	Province  string
	ReviewURL string
}

var notificationTemplate = template.Must(template.New("notify-admins").Parse(notificationHTML))

// NotificationSubject is the subject line for a pending-review alert.
func NotificationSubject(itemType models.ItemType, province string) string {
	return fmt.Sprintf("Nuevo %s pendiente de revisión en %s", itemType, province)
}

func (s *NotificationService) composeMessage(req models.NotificationRequest, recipients []models.AdminUser) (EmailMessage, error) {
	view := notificationView{
		ItemType:  string(req.ItemType),
		ItemID:    req.ItemID,
		ItemName:  req.ItemName,
		Province:  req.Province,
		ReviewURL: s.adminBaseURL + req.ItemType.ReviewPath(),
	}

	var buf bytes.Buffer
	if err := notificationTemplate.Execute(&buf, view); err != nil {
		return EmailMessage{}, fmt.Errorf("render notification: %w", err)
	}

	return EmailMessage{
		To:      recipients,
		Subject: NotificationSubject(req.ItemType, req.Province),
		HTML:    buf.String(),
		Tags: map[string]string{
			"item_type": view.ItemType,
			"item_id":   view.ItemID,
		},
	}, nil
}

func describeProblems(problems map[string]string) string {
	parts := make([]string, 0, len(problems))
	for _, field := range []string{"itemType", "itemId", "province"} {
		if msg, ok := problems[field]; ok {
			parts = append(parts, msg)
		}
	}
	return strings.Join(parts, "; ")
}

const notificationHTML = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Nuevo {{.ItemType}} pendiente de revisión</title>
</head>
<body style="font-family: sans-serif; line-height: 1.5; color: #333;">
    <h2>Nuevo {{.ItemType}} pendiente de revisión en {{.Province}}</h2>
    {{if .ItemName}}<p><strong>{{.ItemName}}</strong></p>{{end}}
    <p>Tipo: {{.ItemType}}<br>ID: {{.ItemID}}<br>Provincia: {{.Province}}</p>
    <p><a href="{{.ReviewURL}}">Revisar en el panel de administración</a></p>
    <p style="font-size: 12px; color: #666;">{{.ReviewURL}}</p>
</body>
</html>
`
