package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/market-news-radar/internal/dedupe"
	"github.com/DeafMist/market-news-radar/internal/logger"
	"github.com/DeafMist/market-news-radar/internal/pipeline"
	"github.com/DeafMist/market-news-radar/internal/processing"
)

const (
	generatedTitleWords = 12
	dlqAttempts         = 5
	unknownSource       = "unknown"
)

var errEmptyPayload = errors.New("empty payload")

type rawArticle struct {
	Title         string `json:"title"`
	Content       string `json:"content"`
	Source        string `json:"source"`
	URL           string `json:"url"`
	Author        string `json:"author"`
	PublishedDate string `json:"published_date"`
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type batchProcessor interface {
	ProcessBatch(ctx context.Context, subs []pipeline.Submission) (pipeline.BatchResult, error)
}

type consumerConfig struct {
	Reader        messageReader
	DLQ           messageWriter
	Processor     batchProcessor
	Seen          *dedupe.Cache
	BatchSize     int
	FlushInterval time.Duration
	Logger        *slog.Logger
}

// consumer accumulates messages into pipeline batches and commits offsets
// only after a batch is persisted or parked on the dead letter topic.
type consumer struct {
	reader        messageReader
	dlq           messageWriter
	proc          batchProcessor
	seen          *dedupe.Cache
	batchSize     int
	flushInterval time.Duration
	backoff       time.Duration
	log           *slog.Logger
	now           func() time.Time
}

func newConsumer(cfg consumerConfig) *consumer {
	log := cfg.Logger
	if log == nil {
		log = logger.Discard()
	}
	return &consumer{
		reader:        cfg.Reader,
		dlq:           cfg.DLQ,
		proc:          cfg.Processor,
		seen:          cfg.Seen,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		backoff:       time.Second,
		log:           log,
		now:           time.Now,
	}
}

// run blocks until ctx is cancelled. Messages still pending at shutdown are
// left uncommitted and will be redelivered.
func (c *consumer) run(ctx context.Context) {
	incoming := make(chan kafka.Message)
	go c.fetch(ctx, incoming)

	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	var pending []kafka.Message
	for {
		select {
		case msg, ok := <-incoming:
			if !ok {
				return
			}
			pending = append(pending, msg)
			if len(pending) >= c.batchSize {
				c.flush(ctx, pending)
				pending = nil
			}
		case <-ticker.C:
			if len(pending) > 0 {
				c.flush(ctx, pending)
				pending = nil
			}
		case <-ctx.Done():
			if len(pending) > 0 {
				c.log.Info("context canceled, leaving batch uncommitted", slog.Int("pending", len(pending)))
			}
			return
		}
	}
}

func (c *consumer) fetch(ctx context.Context, out chan<- kafka.Message) {
	defer close(out)
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Error("fetch message", slog.Any("err", err))
			select {
			case <-time.After(c.backoff):
				continue
			case <-ctx.Done():
				return
			}
		}
		select {
		case out <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// flush processes one batch of messages. Malformed messages go to the dead
// letter topic on their own; a pipeline failure sends the whole batch there.
func (c *consumer) flush(ctx context.Context, msgs []kafka.Message) {
	var (
		subs     []pipeline.Submission
		ids      []string
		accepted []kafka.Message
		skipped  int
	)
	for _, msg := range msgs {
		sub, err := decodeSubmission(msg.Value)
		if err != nil {
			c.log.Warn("malformed message, sending to DLQ",
				slog.Any("err", err),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
			)
			if !c.sendToDLQ(ctx, []kafka.Message{msg}, err) {
				return
			}
			continue
		}

		id := processing.BuildArticleID(sub.Title, sub.Source)
		if c.seen != nil && c.seen.IsSeen(id) {
			c.log.Debug("redelivered article", slog.String("id", id))
			skipped++
			continue
		}
		subs = append(subs, sub)
		ids = append(ids, id)
		accepted = append(accepted, msg)
	}

	if len(subs) > 0 {
		res, err := c.proc.ProcessBatch(ctx, subs)
		if err != nil {
			c.log.Warn("process batch failed, sending to DLQ", slog.Any("err", err), slog.Int("messages", len(accepted)))
			if !c.sendToDLQ(ctx, accepted, err) {
				return
			}
		} else {
			if c.seen != nil {
				c.seen.MarkSeen(ids...)
			}
			c.log.Info("batch processed",
				slog.String("batch_id", res.ID),
				slog.Int("articles", len(res.Articles)),
				slog.Int("duplicates", res.Duplicates()),
				slog.Int("stories", len(res.Stories)),
				slog.Int("redelivered", skipped),
			)
		}
	}

	if err := c.reader.CommitMessages(ctx, msgs...); err != nil {
		c.log.Error("commit messages", slog.Any("err", err))
	}
}

// sendToDLQ reports whether the messages were parked. When it fails the
// caller must not commit so the messages are redelivered on restart.
func (c *consumer) sendToDLQ(ctx context.Context, msgs []kafka.Message, cause error) bool {
	out := make([]kafka.Message, 0, len(msgs))
	ts := c.now().UTC().Format(time.RFC3339)
	for _, msg := range msgs {
		headers := append([]kafka.Header(nil), msg.Headers...)
		headers = append(headers,
			kafka.Header{Key: "original_topic", Value: []byte(msg.Topic)},
			kafka.Header{Key: "original_partition", Value: []byte(strconv.Itoa(msg.Partition))},
			kafka.Header{Key: "original_offset", Value: []byte(strconv.FormatInt(msg.Offset, 10))},
			kafka.Header{Key: "error", Value: []byte(cause.Error())},
			kafka.Header{Key: "timestamp", Value: []byte(ts)},
		)
		out = append(out, kafka.Message{Key: msg.Key, Value: msg.Value, Headers: headers})
	}

	backoff := c.backoff
	for attempt := 0; attempt < dlqAttempts; attempt++ {
		err := c.dlq.WriteMessages(ctx, out...)
		if err == nil {
			c.log.Info("messages sent to DLQ", slog.Int("count", len(out)), slog.Int("attempt", attempt+1))
			return true
		}
		c.log.Warn("DLQ write failed, retrying",
			slog.Any("err", err),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return false
		}
		backoff *= 2
	}

	c.log.Error("DLQ write exhausted retries, leaving batch uncommitted", slog.Int("count", len(out)))
	return false
}

func decodeSubmission(value []byte) (pipeline.Submission, error) {
	var payload rawArticle
	if err := json.Unmarshal(value, &payload); err != nil {
		return pipeline.Submission{}, fmt.Errorf("decode message: %w", err)
	}

	title := strings.TrimSpace(payload.Title)
	content := strings.TrimSpace(payload.Content)
	if content == "" {
		return pipeline.Submission{}, errEmptyPayload
	}
	if title == "" {
		title = processing.GenerateTitleFromText(content, generatedTitleWords)
	}
	if title == "" {
		return pipeline.Submission{}, errEmptyPayload
	}

	source := strings.TrimSpace(payload.Source)
	if source == "" {
		source = unknownSource
	}

	url := strings.TrimSpace(payload.URL)
	if url == "" {
		if urls := processing.ExtractURLs(content); len(urls) > 0 {
			url = urls[0]
		}
	}

	return pipeline.Submission{
		Title:       title,
		Content:     content,
		Source:      source,
		URL:         url,
		Author:      strings.TrimSpace(payload.Author),
		PublishedAt: parseTimestamp(payload.PublishedDate),
	}, nil
}

func parseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}

	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		time.RFC1123Z,
		time.RFC1123,
		"2006-01-02 15:04:05",
		"2006-01-02",
	}

	for _, f := range formats {
		if ts, err := time.Parse(f, raw); err == nil {
			return ts
		}
	}

	return time.Time{}
}
