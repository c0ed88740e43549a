package event

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// These are all the types of events.
const (
	EventSync       = "sync"
	EventRegenerate = "regenerate"
	EventPublish    = "publish"
	EventSkip       = "skip"

	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

type EventID int64

type Event struct {
	// ID is an identifier for this event. Will be auto-set when
	// saving if blank.
	ID EventID `json:"id"`

	// Pipeline that emitted the event.
	Pipeline string `json:"pipeline"`

	// Type is the type of event.
	Type string `json:"type"`

	// StartedAt is the time the event began.
	StartedAt time.Time `json:"startedAt"`

	// EndedAt is the time the event ended. For instantaneous events,
	// this will be the same as StartedAt.
	EndedAt time.Time `json:"endedAt"`

	// LogLevel for this event. Used to indicate how important it is.
	// `debug|info|warn|error`
	LogLevel string `json:"logLevel"`

	// Message is a pre-formatted string for errors and other stuff.
	// Should only be used if metadata is empty.
	Message string `json:"message,omitempty"`

	// Metadata is Event.Type-specific metadata. If an event has no
	// metadata, this will be nil.
	Metadata EventMetadata `json:"metadata,omitempty"`
}

// EventWriter records events somewhere (the run history).
type EventWriter interface {
	// LogEvent records a message in the history.
	LogEvent(Event) error
}

func (e Event) String() string {
	if e.Message != "" {
		return e.Message
	}

	// Events passed around over the wire may arrive without their
	// metadata, so never assume it is there.
	switch e.Type {
	case EventSync:
		if metadata, ok := e.Metadata.(*SyncEventMetadata); ok {
			return fmt.Sprintf("Synced %s: %d new, %d up to date",
				e.Pipeline, metadata.Downloaded, metadata.UpToDate)
		}
		return fmt.Sprintf("Synced %s", e.Pipeline)
	case EventRegenerate:
		if metadata, ok := e.Metadata.(*RegenerateEventMetadata); ok {
			return fmt.Sprintf("Regenerated %s: %s", e.Pipeline, strings.Join(metadata.Tools, ", "))
		}
		return fmt.Sprintf("Regenerated %s", e.Pipeline)
	case EventPublish:
		if metadata, ok := e.Metadata.(*PublishEventMetadata); ok {
			outputs := strings.Join(metadata.Outputs, ", ")
			if metadata.PullRequestURL != "" {
				return fmt.Sprintf("Published %s (%s) for review: %s", outputs, shortRevision(metadata.Revision), metadata.PullRequestURL)
			}
			return fmt.Sprintf("Published %s (%s)", outputs, shortRevision(metadata.Revision))
		}
		return fmt.Sprintf("Published outputs for %s", e.Pipeline)
	case EventSkip:
		return fmt.Sprintf("No changes to publish for %s", e.Pipeline)
	default:
		return "Unknown event"
	}
}

func shortRevision(rev string) string {
	if len(rev) <= 7 {
		return rev
	}
	return rev[:7]
}

// SyncEventMetadata describes the outcome of a data synchronisation.
type SyncEventMetadata struct {
	Archive    string `json:"archive"`
	Downloaded int    `json:"downloaded"`
	UpToDate   int    `json:"upToDate"`
}

// RegenerateEventMetadata lists the tools invoked.
type RegenerateEventMetadata struct {
	Tools []string `json:"tools"`
}

// PublishEventMetadata describes a publication: what was committed and
// where it went for review.
type PublishEventMetadata struct {
	Revision       string   `json:"revision"`
	Branch         string   `json:"branch,omitempty"`
	Outputs        []string `json:"outputs"`
	PullRequestURL string   `json:"pullRequestURL,omitempty"`
}

// EventMetadata is a type safety trick used to make sure that
// Metadata field of Event is always a pointer, so that consumers can
// cast without breaking.
type EventMetadata interface {
	Type() string
}

func (SyncEventMetadata) Type() string       { return EventSync }
func (RegenerateEventMetadata) Type() string { return EventRegenerate }
func (PublishEventMetadata) Type() string    { return EventPublish }

// UnmarshalEvent decodes an event and its typed metadata.
func UnmarshalEvent(b []byte) (Event, error) {
	type alias Event
	var raw struct {
		alias
		MetadataBytes json.RawMessage `json:"metadata,omitempty"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return Event{}, err
	}
	e := Event(raw.alias)
	if len(raw.MetadataBytes) == 0 {
		return e, nil
	}

	var err error
	switch e.Type {
	case EventSync:
		var m SyncEventMetadata
		err = json.Unmarshal(raw.MetadataBytes, &m)
		e.Metadata = &m
	case EventRegenerate:
		var m RegenerateEventMetadata
		err = json.Unmarshal(raw.MetadataBytes, &m)
		e.Metadata = &m
	case EventPublish:
		var m PublishEventMetadata
		err = json.Unmarshal(raw.MetadataBytes, &m)
		e.Metadata = &m
	case EventSkip:
		// no metadata
	default:
		return Event{}, errors.Errorf("unknown event type %q", e.Type)
	}
	if err != nil {
		return Event{}, err
	}
	return e, nil
}
