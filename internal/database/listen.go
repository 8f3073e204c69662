package database

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// ScheduleChannel is the Postgres NOTIFY channel that carries schedule
// change events. The payload is the elder id.
const ScheduleChannel = "schedule_updates"

// Listener turns Postgres LISTEN/NOTIFY into a channel of elder ids, the
// push trigger the coordinator consumes. It holds one dedicated
// connection and reconnects on failure; a lost notification is harmless
// because the periodic tick covers the gap.
type Listener struct {
	db      *DB
	updates chan int64
	log     zerolog.Logger
}

func NewListener(db *DB, log zerolog.Logger) *Listener {
	return &Listener{
		db:      db,
		updates: make(chan int64, 16),
		log:     log.With().Str("component", "listener").Logger(),
	}
}

// Updates returns the stream of elder ids whose schedule changed.
func (l *Listener) Updates() <-chan int64 {
	return l.updates
}

// Run blocks until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) {
	for ctx.Err() == nil {
		if err := l.listen(ctx); err != nil && ctx.Err() == nil {
			l.log.Warn().Err(err).Msg("listen connection lost, reconnecting")
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
	close(l.updates)
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := l.db.Pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+ScheduleChannel); err != nil {
		return err
	}

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		elderID, err := strconv.ParseInt(notification.Payload, 10, 64)
		if err != nil {
			l.log.Warn().Str("payload", notification.Payload).Msg("ignoring malformed notification payload")
			continue
		}
		select {
		case l.updates <- elderID:
		default:
			// Coordinator is behind; the tick will catch this elder up.
		}
	}
}
