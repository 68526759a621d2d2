package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/bookwise/circulation-service/notifier/internal/model"
	"github.com/bookwise/circulation-service/pkg/kafka"
)

type Repository interface {
	Record(ctx context.Context, event kafka.ReminderEvent) error
	ListByUser(ctx context.Context, userID int) (model.ListNotifications, error)
}

type repository struct {
	db  *pgxpool.Pool
	log *zap.Logger
}

func NewRepository(db *pgxpool.Pool, log *zap.Logger) (*repository, error) {
	return &repository{
		db:  db,
		log: log.Named("repo"),
	}, nil
}

func content(event kafka.ReminderEvent) string {
	switch event.Type {
	case "pickup_ready":
		return fmt.Sprintf("Copy %d is ready for pickup", event.CopyID)
	case "payment_due":
		return fmt.Sprintf("An overdue fee is pending for copy %d", event.CopyID)
	case "return_due":
		return fmt.Sprintf("Copy %d is due for return soon", event.CopyID)
	}
	return fmt.Sprintf("Reminder for copy %d", event.CopyID)
}

func (r *repository) Record(ctx context.Context, event kafka.ReminderEvent) error {
	q := `insert into notifications (user_id, copy_id, type, content, sent_at)
	values (@user_id, @copy_id, @type, @content, @sent_at)`
	args := pgx.NamedArgs{
		"user_id": event.UserID,
		"copy_id": event.CopyID,
		"type":    event.Type,
		"content": content(event),
		"sent_at": event.SentAt,
	}
	_, err := r.db.Exec(ctx, q, args)
	return err
}

func (r *repository) ListByUser(ctx context.Context, userID int) (model.ListNotifications, error) {
	const q = `
	select id, user_id, copy_id, type, content, sent_at
	from notifications
	where user_id = $1
	order by sent_at desc, id desc`
	rows, err := r.db.Query(ctx, q, userID)
	if err != nil {
		return model.ListNotifications{}, err
	}
	defer rows.Close()
	items, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.Notification])
	if err != nil {
		return model.ListNotifications{}, fmt.Errorf("pgx.CollectRows: %w", err)
	}
	return model.ListNotifications{Items: items}, nil
}
