package event

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func TestPublish_DeliversToAllSubscribersInOrder(t *testing.T) {
	p := New(zerolog.Nop())
	var order []string
	p.Subscribe("first", func(evt PatientEvent) error {
		order = append(order, "first")
		return nil
	})
	p.Subscribe("second", func(evt PatientEvent) error {
		order = append(order, "second")
		return nil
	})

	p.Publish(Created(&Patient{ID: uuid.New()}, time.Now()))

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("expected delivery in registration order, got %v", order)
	}
}

func TestPublish_SubscriberFailureDoesNotAbortDelivery(t *testing.T) {
	p := New(zerolog.Nop())
	delivered := false
	p.Subscribe("failing", func(evt PatientEvent) error {
		return errors.New("boom")
	})
	p.Subscribe("healthy", func(evt PatientEvent) error {
		delivered = true
		return nil
	})

	p.Publish(Deleted(uuid.New(), time.Now()))

	if !delivered {
		t.Error("expected the second subscriber to still receive the event after the first failed")
	}
}

func TestCreated_CarriesPatient(t *testing.T) {
	id := uuid.New()
	ts := time.Now()
	evt := Created(&Patient{ID: id}, ts)
	if evt.Kind != KindCreated {
		t.Errorf("expected KindCreated, got %v", evt.Kind)
	}
	if evt.Patient == nil || evt.Patient.ID != id {
		t.Errorf("expected patient id %v, got %v", id, evt.Patient)
	}
}

func TestDeleted_CarriesID(t *testing.T) {
	id := uuid.New()
	evt := Deleted(id, time.Now())
	if evt.Kind != KindDeleted {
		t.Errorf("expected KindDeleted, got %v", evt.Kind)
	}
	if evt.ID != id {
		t.Errorf("expected id %v, got %v", id, evt.ID)
	}
}
