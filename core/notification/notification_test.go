package notification_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/nexus/core/notification"
	"github.com/trezcool/nexus/core/user"
	inmemdb "github.com/trezcool/nexus/storage/database/inmem"
	testutil "github.com/trezcool/nexus/tests"
)

func setup(t *testing.T) (notification.Service, user.User, user.User) {
	t.Helper()
	db := inmemdb.Open()
	userRepo := inmemdb.NewUserRepository(db)
	admin := testutil.CreateUser(t, userRepo, user.RoleAdmin, "Admin", "admin", "")
	student := testutil.CreateUser(t, userRepo, user.RoleStudent, "Juan Perez", "juan", "")
	svc := notification.NewService(inmemdb.NewNotificationRepository(db), user.NewService(userRepo))
	return svc, admin, student
}

func TestService_List(t *testing.T) {
	ctx := context.Background()
	svc, admin, student := setup(t)

	tests := []struct {
		name       string
		usr        user.User
		unreadOnly bool
		wantTexts  []string
	}{
		{
			name: "admin seeds",
			usr:  admin,
			wantTexts: []string{
				"Bienvenido al <strong>Panel de Control</strong>. El sistema está actualizado.",
				"Reporte: <strong>3 intentos fallidos</strong> de acceso detectados.",
				"Copia de seguridad del sistema completada con éxito.",
			},
		},
		{
			name: "student seeds",
			usr:  student,
			wantTexts: []string{
				"Nuevo material en: <strong>Ingeniería de Software</strong>",
				"Tu tarea de <strong>Matemáticas</strong> fue calificada: 18/20.",
				"Recordatorio: Examen de <strong>Física</strong> mañana a las 8:00 AM.",
			},
		},
		{
			name:       "unread only",
			usr:        student,
			unreadOnly: true,
			wantTexts: []string{
				"Nuevo material en: <strong>Ingeniería de Software</strong>",
				"Tu tarea de <strong>Matemáticas</strong> fue calificada: 18/20.",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notifs, err := svc.List(ctx, tt.usr, tt.unreadOnly)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			texts := make([]string, 0, len(notifs))
			for _, n := range notifs {
				texts = append(texts, n.Text)
			}
			assert.Equal(t, tt.wantTexts, texts)
		})
	}
}

func TestService_MarkAsRead(t *testing.T) {
	ctx := context.Background()
	svc, _, student := setup(t)

	if n, _ := svc.UnreadCount(ctx, student); n != 2 {
		t.Fatalf("UnreadCount() = %d, want 2", n)
	}

	n, err := svc.MarkAsRead(ctx, student, 1)
	if err != nil {
		t.Fatalf("MarkAsRead() error = %v", err)
	}
	assert.True(t, n.Read)
	if n, _ := svc.UnreadCount(ctx, student); n != 1 {
		t.Errorf("UnreadCount() = %d, want 1", n)
	}

	unread, _ := svc.List(ctx, student, true)
	if assert.Len(t, unread, 1) {
		assert.Equal(t, 2, unread[0].ID)
	}

	// marking again changes nothing
	if _, err = svc.MarkAsRead(ctx, student, 1); err != nil {
		t.Errorf("MarkAsRead() error = %v", err)
	}
	if n, _ := svc.UnreadCount(ctx, student); n != 1 {
		t.Errorf("UnreadCount() = %d, want 1", n)
	}

	if _, err = svc.MarkAsRead(ctx, student, 42); errors.Cause(err) != notification.ErrNotFound {
		t.Errorf("MarkAsRead() error = %v, wantErr %v", err, notification.ErrNotFound)
	}
}

func TestService_Push(t *testing.T) {
	ctx := context.Background()
	svc, admin, student := setup(t)

	if err := svc.Push(ctx, student.ID, "urgent", "x"); errors.Cause(err) != notification.ErrInvalidType {
		t.Errorf("Push() error = %v, wantErr %v", err, notification.ErrInvalidType)
	}
	if err := svc.Push(ctx, student.ID, notification.TypeSuccess, "Tu solicitud fue aprobada."); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	// pushed before first access: the seeds are still there, the new entry comes first
	notifs, err := svc.List(ctx, student, false)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if assert.Len(t, notifs, 4) {
		assert.Equal(t, "Tu solicitud fue aprobada.", notifs[0].Text)
		assert.Equal(t, 4, notifs[0].ID)
		assert.False(t, notifs[0].Read)
	}

	// feeds are per user
	if n, _ := svc.UnreadCount(ctx, admin); n != 2 {
		t.Errorf("admin UnreadCount() = %d, want 2", n)
	}
}
