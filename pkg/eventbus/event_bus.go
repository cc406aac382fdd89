// Package eventbus distributes mutation events to observers. Every mutating
// call against the record store publishes one event, which feeds logging,
// dry-run reporting and test assertions without coupling the reconciler to
// any of them.
package eventbus

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Kind is the mutation class of an event.
type Kind string

const (
	KindCreateEngagement    Kind = "create_engagement"
	KindEditEngagement      Kind = "edit_engagement"
	KindTerminateEngagement Kind = "terminate_engagement"
	KindCreateLeave         Kind = "create_leave"
	KindCreateOrgUnit       Kind = "create_org_unit"
	KindUpdateOrgUnit       Kind = "update_org_unit"
	KindCreateClass         Kind = "create_class"
	KindCreateAssociation   Kind = "create_association"
)

// Event describes one mutation, performed or (in dry-run) withheld.
type Event struct {
	Kind       Kind
	UserKey    string
	ObjectUUID string
	From       string
	To         string
	DryRun     bool
	Detail     map[string]string
}

type Handler func(Event)

type EventBus interface {
	Publish(event Event)
	Subscribe(handler Handler)
	Clear()
	SubscribersCount() int
}

type publisherImpl struct {
	log *logrus.Logger

	mu          sync.RWMutex
	subscribers []Handler
}

func NewEventPublisher(log *logrus.Logger) EventBus {
	return &publisherImpl{log: log}
}

func (p *publisherImpl) Publish(event Event) {
	p.mu.RLock()
	subscribers := make([]Handler, len(p.subscribers))
	copy(subscribers, p.subscribers)
	p.mu.RUnlock()

	for _, handler := range subscribers {
		p.call(handler, event)
	}
}

func (p *publisherImpl) call(handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			if p.log != nil {
				p.log.Errorf("eventbus: handler panicked on %s event: %v", event.Kind, r)
			}
		}
	}()
	handler(event)
}

func (p *publisherImpl) Subscribe(handler Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = append(p.subscribers, handler)
}

func (p *publisherImpl) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = nil
}

func (p *publisherImpl) SubscribersCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subscribers)
}

// LoggingSubscriber logs every mutation event, marking withheld dry-run
// mutations as such.
func LoggingSubscriber(log *logrus.Logger) Handler {
	return func(e Event) {
		fields := logrus.Fields{
			"kind":     e.Kind,
			"user_key": e.UserKey,
			"from":     e.From,
			"to":       e.To,
		}
		if e.ObjectUUID != "" {
			fields["uuid"] = e.ObjectUUID
		}
		for k, v := range e.Detail {
			fields[k] = v
		}
		if e.DryRun {
			log.WithFields(fields).Info("dry-run: would mutate")
			return
		}
		log.WithFields(fields).Info("mutation applied")
	}
}
