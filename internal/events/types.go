package events

import "time"

// Collections observable through the change feed.
const (
	CollectionPatients      = "patients"
	CollectionConsultations = "consultations"
	CollectionClinicians    = "clinicians"
	CollectionAvailability  = "availability"
)

// Op is the kind of mutation that produced an event.
type Op string

const (
	OpCreated Op = "created"
	OpUpdated Op = "updated"
)

// ChangeEventV1 announces one committed write to a collection. Field-group
// writes carry the group name so observers can ignore groups they do not
// render.
type ChangeEventV1 struct {
	EventID    string    `json:"event_id"`
	Collection string    `json:"collection"`
	Op         Op        `json:"op"`
	RecordID   string    `json:"record_id"`
	FieldGroup string    `json:"field_group,omitempty"`
	ActorRole  string    `json:"actor_role,omitempty"`
	ActorID    string    `json:"actor_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
