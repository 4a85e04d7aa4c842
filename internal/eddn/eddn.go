// Package eddn subscribes to the Elite Dangerous Data Network relay and hands
// journal events to a callback.
package eddn

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zlib"

	"galos/internal/journal"
	"galos/internal/logger"
	"galos/internal/metrics"
)

const (
	// DefaultURL is the public EDDN relay.
	DefaultURL = "tcp://eddn.edcd.io:9500"
	// JournalSchema is the only schema whose messages are handed on.
	JournalSchema = "https://eddn.edcd.io/schemas/journal/1"
	// MaxMessageSize caps an inflated message. Relay messages are a few KiB.
	MaxMessageSize = 1 << 20
)

// receiveBackoff is the pause after a failed receive before trying again.
var receiveBackoff = time.Second

// ErrSkipped marks a message that was valid but not for us.
var ErrSkipped = errors.New("message skipped")

// Header is the uploader metadata of an EDDN envelope.
type Header struct {
	UploaderID       string    `json:"uploaderID"`
	SoftwareName     string    `json:"softwareName"`
	SoftwareVersion  string    `json:"softwareVersion"`
	GatewayTimestamp time.Time `json:"gatewayTimestamp"`
}

// Envelope is a decoded EDDN message.
type Envelope struct {
	SchemaRef string          `json:"$schemaRef"`
	Header    Header          `json:"header"`
	Message   json.RawMessage `json:"message"`
}

// Handler receives journal events in arrival order.
type Handler func(ctx context.Context, ev journal.Event) error

// Decode inflates a zlib frame and decodes the envelope.
func Decode(frame []byte) (Envelope, error) {
	zr, err := zlib.NewReader(bytes.NewReader(frame))
	if err != nil {
		return Envelope{}, fmt.Errorf("inflate: %w", err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(io.LimitReader(zr, MaxMessageSize+1))
	if err != nil {
		return Envelope{}, fmt.Errorf("inflate: %w", err)
	}
	if len(raw) > MaxMessageSize {
		return Envelope{}, fmt.Errorf("inflate: message exceeds %d bytes", MaxMessageSize)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// Event extracts the journal event of a journal/1 envelope. Other schemas and
// unsupported events return ErrSkipped.
func (e Envelope) Event() (journal.Event, error) {
	if e.SchemaRef != JournalSchema {
		return journal.Event{}, fmt.Errorf("%w: schema %s", ErrSkipped, e.SchemaRef)
	}
	ev, err := journal.ParseEvent(e.Message)
	if errors.Is(err, journal.ErrUnsupported) {
		return journal.Event{}, fmt.Errorf("%w: %w", ErrSkipped, err)
	}
	return ev, err
}

// Process decodes one frame and calls h for a journal event. Invalid and
// skipped frames are counted and dropped; only h's error is returned.
func Process(ctx context.Context, frame []byte, h Handler) error {
	env, err := Decode(frame)
	if err != nil {
		metrics.FeedMessages.WithLabelValues("invalid").Inc()
		logger.Warn("EDDN", err.Error())
		return nil
	}
	ev, err := env.Event()
	if errors.Is(err, ErrSkipped) {
		metrics.FeedMessages.WithLabelValues("skipped").Inc()
		return nil
	}
	if err != nil {
		metrics.FeedMessages.WithLabelValues("invalid").Inc()
		logger.Warn("EDDN", fmt.Sprintf("%s from %s: %v", env.SchemaRef, env.Header.SoftwareName, err))
		return nil
	}
	metrics.FeedMessages.WithLabelValues("accepted").Inc()
	return h(ctx, ev)
}

// Subscribe connects a SUB socket to url and processes messages until ctx is
// done or h fails. Receive errors are logged and the socket is read again.
func Subscribe(ctx context.Context, url string, h Handler) error {
	sub := zmq4.NewSub(ctx)
	defer sub.Close()

	if err := sub.Dial(url); err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	if err := sub.SetOption(zmq4.OptionSubscribe, ""); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	logger.Success("EDDN", "Subscribed to "+url)
	return receive(ctx, sub.Recv, h)
}

func receive(ctx context.Context, recv func() (zmq4.Msg, error), h Handler) error {
	for {
		msg, err := recv()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			metrics.FeedMessages.WithLabelValues("receive_error").Inc()
			logger.Warn("EDDN", fmt.Sprintf("receive: %v", err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(receiveBackoff):
			}
			continue
		}
		for _, frame := range msg.Frames {
			if err := Process(ctx, frame, h); err != nil {
				return err
			}
		}
	}
}
