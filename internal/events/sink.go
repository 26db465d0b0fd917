package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/CZERTAINLY/Scribe/internal/model"
)

const DefaultRedisKey = "scribe:events"

// Multi notifies every notifier and joins their errors.
type Multi []model.Notifier

func (m Multi) Notify(ctx context.Context, e model.Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes events to the default logger; process output is logged on
// debug level only.
type LogSink struct{}

func (LogSink) Notify(ctx context.Context, e model.Event) error {
	switch data := e.Data.(type) {
	case model.RenderStarted:
		slog.InfoContext(ctx, "render event", "event", e.Type, "job_id", data.JobID, "format", data.OutputFormat.Name)
	case model.RenderOutput:
		slog.DebugContext(ctx, "render event", "event", e.Type, "job_id", data.JobID, "stream", data.Type, "output", data.Text)
	case model.RenderResult:
		slog.InfoContext(ctx, "render event",
			"event", e.Type,
			"job_id", data.JobID,
			"succeeded", data.Succeeded,
			"output_file", data.OutputFile,
		)
	default:
		slog.DebugContext(ctx, "render event", "event", e.Type)
	}
	return nil
}

// Record is what the RedisSink stores.
type Record struct {
	Time time.Time       `json:"time"`
	Type model.EventType `json:"type"`
	Data json.RawMessage `json:"data"`
}

// RedisSink appends every event as a JSON Record to a Redis list.
type RedisSink struct {
	rdb *redis.Client
	key string
}

func NewRedisSink(rdb *redis.Client, key string) *RedisSink {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisSink{rdb: rdb, key: key}
}

// DialRedis connects to url (redis:// or rediss://) and checks the connection.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connecting to redis %s: %w", opts.Addr, err)
	}
	return rdb, nil
}

func (s *RedisSink) Notify(ctx context.Context, e model.Event) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", e.Type, err)
	}
	b, err := json.Marshal(Record{Time: time.Now().UTC(), Type: e.Type, Data: data})
	if err != nil {
		return err
	}
	if err := s.rdb.RPush(ctx, s.key, b).Err(); err != nil {
		return fmt.Errorf("pushing %s event to redis: %w", e.Type, err)
	}
	return nil
}

func (s *RedisSink) Key() string {
	return s.key
}
