package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType represents what happened to an entity
type EventType string

const (
	EventTypeOriginated EventType = "originated"
	EventTypeCancelled  EventType = "cancelled"
	EventTypeImported   EventType = "imported"
)

// EntityType represents the type of entity the event is about
type EntityType string

const (
	EntityTypeLoan       EntityType = "loan"
	EntityTypeLoanImport EntityType = "loan_import"
)

// Event is a domain event consumed by downstream workflows (collections, settlement)
// Format: { id, type, tenantId, entity, entityId, payload, timestamp }
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"` // Combined type e.g. "loan.originated"
	TenantID  int32       `json:"tenantId"`
	Entity    EntityType  `json:"entity"`
	EntityID  int32       `json:"entityId,omitempty"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewEvent creates a new event with a fresh id
func NewEvent(eventType EventType, entityType EntityType, tenantID, entityID int32, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      fmt.Sprintf("%s.%s", entityType, eventType),
		TenantID:  tenantID,
		Entity:    entityType,
		EntityID:  entityID,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON serializes the event to JSON bytes
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LoanOriginated creates a loan.originated event
func LoanOriginated(tenantID, loanID int32, payload interface{}) Event {
	return NewEvent(EventTypeOriginated, EntityTypeLoan, tenantID, loanID, payload)
}

// LoanCancelled creates a loan.cancelled event
func LoanCancelled(tenantID, loanID int32, payload interface{}) Event {
	return NewEvent(EventTypeCancelled, EntityTypeLoan, tenantID, loanID, payload)
}

// LoanImportCompleted creates a loan_import.imported event summarizing a bulk import
func LoanImportCompleted(tenantID int32, payload interface{}) Event {
	return NewEvent(EventTypeImported, EntityTypeLoanImport, tenantID, 0, payload)
}
