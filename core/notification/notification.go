package notification

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/nexus/core/user"
)

// Notification types
const (
	TypeInfo    = "info"
	TypeWarning = "warning"
	TypeSuccess = "success"
)

var (
	nowFunc = time.Now // mockable

	// errors
	ErrNotFound    = errors.New("notification not found")
	ErrInvalidType = errors.New("invalid notification type")
)

// Notification is an entry of a user's feed. Text may hold inline <strong> markup.
type Notification struct {
	ID        int       `json:"id" db:"id"`
	Type      string    `json:"type" db:"type"`
	Text      string    `json:"text" db:"text"`
	Time      string    `json:"time" db:"time"` // display label
	Read      bool      `json:"read" db:"read"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

func IsValidType(typ string) bool {
	return typ == TypeInfo || typ == TypeWarning || typ == TypeSuccess
}

var (
	adminSeeds = []Notification{
		{ID: 1, Type: TypeInfo, Text: "Bienvenido al <strong>Panel de Control</strong>. El sistema está actualizado.", Time: "Hace 1 min"},
		{ID: 2, Type: TypeWarning, Text: "Reporte: <strong>3 intentos fallidos</strong> de acceso detectados.", Time: "Hace 2 horas"},
		{ID: 3, Type: TypeSuccess, Text: "Copia de seguridad del sistema completada con éxito.", Time: "Ayer", Read: true},
	}
	defaultSeeds = []Notification{
		{ID: 1, Type: TypeInfo, Text: "Nuevo material en: <strong>Ingeniería de Software</strong>", Time: "Hace 10 min"},
		{ID: 2, Type: TypeSuccess, Text: "Tu tarea de <strong>Matemáticas</strong> fue calificada: 18/20.", Time: "Hace 1 hora"},
		{ID: 3, Type: TypeWarning, Text: "Recordatorio: Examen de <strong>Física</strong> mañana a las 8:00 AM.", Time: "Hace 3 horas", Read: true},
	}
)

// Seeds returns the initial feed of role: one set for admins, one for everyone else.
func Seeds(role string) []Notification {
	src := defaultSeeds
	if role == user.RoleAdmin {
		src = adminSeeds
	}
	seeds := make([]Notification, len(src))
	copy(seeds, src)
	return seeds
}

type (
	Repository interface {
		// SeedFeed stores notifs as the feed of userID unless that feed was seeded before.
		SeedFeed(ctx context.Context, userID string, notifs []Notification) error
		ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]Notification, error)
		// AddNotification appends n to the feed of userID, assigning the next ID.
		AddNotification(ctx context.Context, userID string, n Notification) (Notification, error)
		// MarkAsRead returns ErrNotFound if the feed of userID has no notification id.
		MarkAsRead(ctx context.Context, userID string, id int) (Notification, error)
	}

	UserDirectory interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Service interface {
		List(ctx context.Context, usr user.User, unreadOnly bool) ([]Notification, error)
		UnreadCount(ctx context.Context, usr user.User) (int, error)
		MarkAsRead(ctx context.Context, usr user.User, id int) (Notification, error)
		Push(ctx context.Context, userID, typ, text string) error
	}

	service struct {
		repo  Repository
		users UserDirectory
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, users UserDirectory) Service {
	return &service{repo: repo, users: users}
}

func (svc *service) ensureFeed(ctx context.Context, usr user.User) error {
	seeds := Seeds(usr.Role)
	now := nowFunc().UTC()
	for i := range seeds {
		seeds[i].CreatedAt = now
	}
	if err := svc.repo.SeedFeed(ctx, usr.ID, seeds); err != nil {
		return errors.Wrap(err, "seeding feed")
	}
	return nil
}

// List returns the feed of usr, newest first.
func (svc *service) List(ctx context.Context, usr user.User, unreadOnly bool) ([]Notification, error) {
	if err := svc.ensureFeed(ctx, usr); err != nil {
		return nil, err
	}
	notifs, err := svc.repo.ListNotifications(ctx, usr.ID, unreadOnly)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(notifs, func(i, j int) bool {
		if !notifs[i].CreatedAt.Equal(notifs[j].CreatedAt) {
			return notifs[i].CreatedAt.After(notifs[j].CreatedAt)
		}
		return notifs[i].ID < notifs[j].ID
	})
	return notifs, nil
}

func (svc *service) UnreadCount(ctx context.Context, usr user.User) (int, error) {
	unread, err := svc.List(ctx, usr, true)
	if err != nil {
		return 0, err
	}
	return len(unread), nil
}

// MarkAsRead flags the notification as read. Marking a read notification changes nothing.
func (svc *service) MarkAsRead(ctx context.Context, usr user.User, id int) (Notification, error) {
	if err := svc.ensureFeed(ctx, usr); err != nil {
		return Notification{}, err
	}
	return svc.repo.MarkAsRead(ctx, usr.ID, id)
}

func (svc *service) Push(ctx context.Context, userID, typ, text string) error {
	if !IsValidType(typ) {
		return ErrInvalidType
	}
	usr, err := svc.users.GetByID(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "finding user")
	}
	if err := svc.ensureFeed(ctx, usr); err != nil {
		return err
	}

	now := nowFunc().UTC()
	_, err = svc.repo.AddNotification(ctx, usr.ID, Notification{
		Type:      typ,
		Text:      text,
		Time:      now.Format("02/01/2006 15:04"),
		CreatedAt: now,
	})
	return err
}
