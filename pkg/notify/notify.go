// Package notify announces the selected track to downstream consumers over
// SQS and SNS.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/streambot/s3playlist/pkg/trackmeta"
)

// Body is the fixed message body of every announcement.
const Body = "track_update"

// Attribute names carried on each announcement.
const (
	AttrFileName = "FileName"
	AttrArtist   = "Artist"
	AttrTitle    = "Title"
	AttrAlbum    = "Album"
)

// Message is one track announcement.
type Message struct {
	// FileName is the base name of the local file.
	FileName string

	// Tag is nil when the file carries no recognizable metadata.
	Tag *trackmeta.Tag
}

// Attributes returns the string attributes for m. Artist, Title and Album
// are present only when a tag was read and the field is non-empty; SQS and
// SNS reject empty string attributes.
func (m Message) Attributes() map[string]string {
	attrs := map[string]string{AttrFileName: m.FileName}
	if m.Tag == nil {
		return attrs
	}
	for name, value := range map[string]string{
		AttrArtist: m.Tag.Artist,
		AttrTitle:  m.Tag.Title,
		AttrAlbum:  m.Tag.Album,
	} {
		if value != "" {
			attrs[name] = value
		}
	}
	return attrs
}

// Sink delivers a Message to one destination.
type Sink interface {
	Name() string
	Publish(ctx context.Context, msg Message) error
}

// NotificationError reports a failed publish to a single sink.
type NotificationError struct {
	Sink string
	Err  error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify %s: %v", e.Sink, e.Err)
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}

// Dispatcher publishes a Message to every configured sink.
type Dispatcher struct {
	sinks []Sink
	log   *zap.Logger
}

// NewDispatcher creates a Dispatcher. Nil sinks are ignored.
func NewDispatcher(log *zap.Logger, sinks ...Sink) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	d := &Dispatcher{log: log}
	for _, s := range sinks {
		if s != nil {
			d.sinks = append(d.sinks, s)
		}
	}
	return d
}

// Targets names the destinations of a track announcement. Empty fields are
// skipped.
type Targets struct {
	QueueURL string
	TopicARN string
}

// FromConfig builds a Dispatcher for the configured targets.
func FromConfig(base aws.Config, targets Targets, log *zap.Logger) (*Dispatcher, error) {
	var sinks []Sink
	if targets.QueueURL != "" {
		s, err := NewSQSSink(base, targets.QueueURL)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if targets.TopicARN != "" {
		s, err := NewSNSSink(base, targets.TopicARN)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	return NewDispatcher(log, sinks...), nil
}

// Sinks returns the number of configured sinks.
func (d *Dispatcher) Sinks() int {
	return len(d.sinks)
}

// Publish sends msg to all sinks concurrently. Every sink is attempted even
// when another fails; failures are joined as *NotificationError values.
// Nothing is retried.
func (d *Dispatcher) Publish(ctx context.Context, msg Message) error {
	errs := make([]error, len(d.sinks))

	var g errgroup.Group
	for i, s := range d.sinks {
		g.Go(func() error {
			if err := s.Publish(ctx, msg); err != nil {
				d.log.Error("Failed to publish track update",
					zap.String("sink", s.Name()),
					zap.String("file", msg.FileName),
					zap.Error(err))
				errs[i] = &NotificationError{Sink: s.Name(), Err: err}
				return nil
			}
			d.log.Debug("Published track update",
				zap.String("sink", s.Name()),
				zap.String("file", msg.FileName))
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}
