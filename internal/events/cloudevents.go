package events

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"

	"github.com/bft-labs/edgevisor/internal/domain"
	"github.com/bft-labs/edgevisor/pkg/log"
)

// TransitionEventType is the CloudEvents type of a state change.
const TransitionEventType = "io.edgevisor.service.transition"

// TransitionData is the JSON payload of a transition CloudEvent.
type TransitionData struct {
	Service    string `json:"service"`
	From       string `json:"from"`
	To         string `json:"to"`
	Seq        uint64 `json:"seq"`
	Generation uint64 `json:"generation"`
	Forced     bool   `json:"forced,omitempty"`
	Stage      string `json:"stage,omitempty"`
	Status     string `json:"status,omitempty"`
	ExitCode   int    `json:"exitCode,omitempty"`
	Cause      string `json:"cause,omitempty"`
}

// ToCloudEvent encodes ev as a CloudEvents v1 event. source is the
// producer identity, e.g. "edgevisor/<device>". The event is validated
// before it is returned.
func ToCloudEvent(source string, ev domain.Event) (cloudevents.Event, error) {
	ce := cloudevents.NewEvent()
	ce.SetID(newEventID())
	ce.SetSource(source)
	ce.SetType(TransitionEventType)
	ce.SetSubject(ev.Service)
	ce.SetTime(ev.Time)
	ce.SetSpecVersion(cloudevents.VersionV1)

	data := TransitionData{
		Service:    ev.Service,
		From:       ev.Old.String(),
		To:         ev.New.String(),
		Seq:        ev.Seq,
		Generation: ev.Generation,
		Forced:     ev.Forced,
	}
	if f := ev.Failure; f != nil {
		data.Stage = string(f.Stage)
		data.Status = string(f.Code)
		data.ExitCode = f.ExitCode
		if f.Cause != nil {
			data.Cause = f.Cause.Error()
		}
	}
	if err := ce.SetData(cloudevents.ApplicationJSON, data); err != nil {
		return ce, fmt.Errorf("encode transition data: %w", err)
	}
	if err := ce.Validate(); err != nil {
		return ce, fmt.Errorf("invalid cloudevent: %w", err)
	}
	return ce, nil
}

func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

// JSONLinesSink writes every transition as one CloudEvent JSON per line.
type JSONLinesSink struct {
	mu     sync.Mutex
	w      io.Writer
	source string
	logger log.Logger
}

// NewJSONLinesSink creates a sink writing to w.
func NewJSONLinesSink(w io.Writer, source string, logger log.Logger) *JSONLinesSink {
	if logger == nil {
		logger = log.NewNoop()
	}
	return &JSONLinesSink{w: w, source: source, logger: logger}
}

// OnTransition implements Listener.
func (s *JSONLinesSink) OnTransition(ev domain.Event) {
	ce, err := ToCloudEvent(s.source, ev)
	if err == nil {
		err = s.write(ce)
	}
	if err != nil {
		s.logger.Warn("event-log-write-failed", log.Service(ev.Service), log.Err(err))
	}
}

func (s *JSONLinesSink) write(ce cloudevents.Event) error {
	b, err := json.Marshal(ce)
	if err != nil {
		return fmt.Errorf("marshal cloudevent: %w", err)
	}
	b = append(b, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.w.Write(b)
	return err
}

var _ Listener = (*JSONLinesSink)(nil)
