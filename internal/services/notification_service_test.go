package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/comunidad/backend/internal/models"
)

func TestNotifyAdminsSendsOneMessageToDistinctEmails(t *testing.T) {
	dir := &fakeDirectory{
		regional: map[string][]models.AdminUser{
			"Ontario": {
				{Email: "ana@example.org", Role: models.RoleRegionalAdmin, ManagedProvince: "Ontario"},
				{Email: "luis@example.org", Role: models.RoleRegionalAdmin, ManagedProvince: "Ontario"},
			},
		},
		global: []models.AdminUser{{Email: "LUIS@example.org", Role: models.RoleAdmin}},
	}
	mailer := &recordingMailer{}
	logger, _ := newTestLogger()
	svc := NewNotificationService(dir, mailer, "https://admin.example/", logger)

	result, err := svc.NotifyAdmins(context.Background(), models.NotificationRequest{
		ItemType: models.ItemEvento,
		ItemID:   "evt-42",
		Province: "Ontario",
		ItemName: "Feria <de> otoño",
	})
	if err != nil {
		t.Fatalf("notify failed: %v", err)
	}

	if result.RecipientsNotified != 2 {
		t.Fatalf("expected 2 recipients, got %d", result.RecipientsNotified)
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("expected one provider call, got %d", len(mailer.sent))
	}

	msg := mailer.sent[0]
	if len(msg.To) != 2 {
		t.Fatalf("expected 2 addresses in message, got %+v", msg.To)
	}
	if msg.Subject != "Nuevo Evento pendiente de revisión en Ontario" {
		t.Fatalf("unexpected subject %q", msg.Subject)
	}
	if !strings.Contains(msg.HTML, "https://admin.example/admin/events") {
		t.Fatalf("expected events review link, got %s", msg.HTML)
	}
	if !strings.Contains(msg.HTML, "Feria &lt;de&gt; otoño") {
		t.Fatalf("expected escaped item name, got %s", msg.HTML)
	}
	if msg.Tags["item_id"] != "evt-42" {
		t.Fatalf("expected item id tag, got %v", msg.Tags)
	}
}

func TestNotifyAdminsWithNoAdminsSkipsProvider(t *testing.T) {
	mailer := &recordingMailer{}
	svc := NewNotificationService(&fakeDirectory{}, mailer, "http://localhost", quietLogger())

	result, err := svc.NotifyAdmins(context.Background(), models.NotificationRequest{
		ItemType: models.ItemServicio,
		ItemID:   "svc-1",
		Province: "Yukon",
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if result.RecipientsNotified != 0 {
		t.Fatalf("expected 0 recipients, got %d", result.RecipientsNotified)
	}
	if len(mailer.sent) != 0 {
		t.Fatalf("expected no provider call, got %d", len(mailer.sent))
	}
}

func TestNotifyAdminsValidatesRequest(t *testing.T) {
	mailer := &recordingMailer{}
	dir := &fakeDirectory{}
	svc := NewNotificationService(dir, mailer, "", quietLogger())

	cases := []models.NotificationRequest{
		{ItemType: "Noticia", ItemID: "1", Province: "Ontario"},
		{ItemType: models.ItemUsuario, ItemID: " ", Province: "Ontario"},
		{ItemType: models.ItemUsuario, ItemID: "1"},
	}
	for _, req := range cases {
		if _, err := svc.NotifyAdmins(context.Background(), req); !errors.Is(err, ErrValidation) {
			t.Fatalf("expected ErrValidation for %+v, got %v", req, err)
		}
	}
	if dir.calls() != 0 || len(mailer.sent) != 0 {
		t.Fatalf("expected no directory or provider calls on invalid input")
	}
}

func TestNotifyAdminsDirectoryFailure(t *testing.T) {
	errQuery := errors.New("deadline exceeded")
	mailer := &recordingMailer{}
	svc := NewNotificationService(&fakeDirectory{globalErr: errQuery}, mailer, "", quietLogger())

	_, err := svc.NotifyAdmins(context.Background(), models.NotificationRequest{
		ItemType: models.ItemUsuario, ItemID: "u1", Province: "Ontario",
	})
	if !errors.Is(err, ErrPersistence) || !errors.Is(err, errQuery) {
		t.Fatalf("expected ErrPersistence wrapping query error, got %v", err)
	}
	if len(mailer.sent) != 0 {
		t.Fatalf("expected no provider call after directory failure")
	}
}

func TestNotifyAdminsProviderFailure(t *testing.T) {
	dir := &fakeDirectory{global: []models.AdminUser{{Email: "root@example.org", Role: models.RoleAdmin}}}
	mailer := &recordingMailer{err: errors.New("http 500")}
	logger, hook := newTestLogger()
	svc := NewNotificationService(dir, mailer, "", logger)

	_, err := svc.NotifyAdmins(context.Background(), models.NotificationRequest{
		ItemType: models.ItemUsuario, ItemID: "u1", Province: "Ontario",
	})
	if !errors.Is(err, ErrNotificationProvider) {
		t.Fatalf("expected ErrNotificationProvider, got %v", err)
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("expected exactly one attempt, got %d", len(mailer.sent))
	}
	if hook.LastEntry() == nil || hook.LastEntry().Message != "notification send failed" {
		t.Fatalf("expected provider failure to be logged")
	}
}

func TestNotificationReviewPathPerItemType(t *testing.T) {
	dir := &fakeDirectory{global: []models.AdminUser{{Email: "root@example.org", Role: models.RoleAdmin}}}
	mailer := &recordingMailer{}
	svc := NewNotificationService(dir, mailer, "https://panel.example", quietLogger())

	want := map[models.ItemType]string{
		models.ItemServicio: "https://panel.example/admin/services",
		models.ItemEvento:   "https://panel.example/admin/events",
		models.ItemUsuario:  "https://panel.example/admin/users",
	}
	for itemType, link := range want {
		if _, err := svc.NotifyAdmins(context.Background(), models.NotificationRequest{
			ItemType: itemType, ItemID: "x", Province: "Ontario",
		}); err != nil {
			t.Fatalf("notify %s failed: %v", itemType, err)
		}
		last := mailer.sent[len(mailer.sent)-1]
		if !strings.Contains(last.HTML, link) {
			t.Fatalf("expected %s link for %s, got %s", link, itemType, last.HTML)
		}
	}
}

type fakeDirectory struct {
	mu          sync.Mutex
	regional    map[string][]models.AdminUser
	global      []models.AdminUser
	regionalErr error
	globalErr   error
	n           int
}

func (f *fakeDirectory) RegionalAdmins(_ context.Context, province string) ([]models.AdminUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	if f.regionalErr != nil {
		return nil, f.regionalErr
	}
	return f.regional[province], nil
}

func (f *fakeDirectory) GlobalAdmins(context.Context) ([]models.AdminUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	if f.globalErr != nil {
		return nil, f.globalErr
	}
	return f.global, nil
}

func (f *fakeDirectory) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}

type recordingMailer struct {
	sent []EmailMessage
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg EmailMessage) error {
	m.sent = append(m.sent, msg)
	return m.err
}
