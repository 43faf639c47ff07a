package domain

import "time"

// Sub-workflow records are the durable evidence that a guard condition has
// been met. Each is created by exactly one workflow action; identifying
// fields are write-once, while a bounded set of fields accepts later
// updates through the matching update action.

// Diagnosis documents the technician's on-site findings.
type Diagnosis struct {
	ProblemIdentified string     `json:"problem_identified"`
	Details           string     `json:"details,omitempty"`
	DiagnosedBy       string     `json:"diagnosed_by"`
	DiagnosedAt       time.Time  `json:"diagnosed_at"`
	UpdatedAt         *time.Time `json:"updated_at,omitempty"`
}

// AMCRepair tracks an in-house repair under an annual maintenance contract.
// RepairActions and PartsReplaced may grow while the device is still under
// repair; the record is frozen once the repair completes.
type AMCRepair struct {
	IssueIdentified string     `json:"issue_identified"`
	RepairActions   []string   `json:"repair_actions,omitempty"`
	PartsReplaced   []string   `json:"parts_replaced,omitempty"`
	StartedBy       string     `json:"started_by"`
	StartedAt       time.Time  `json:"started_at"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// OEMRepair tracks a repair routed through the manufacturer's service
// process. ReceivedBackDate gates completion.
type OEMRepair struct {
	OEMName          string     `json:"oem_name"`
	OEMTicketRef     string     `json:"oem_ticket_ref,omitempty"`
	SentDate         *time.Time `json:"sent_date,omitempty"`
	ReceivedBackDate *time.Time `json:"received_back_date,omitempty"`
	Notes            string     `json:"notes,omitempty"`
	RecordedBy       string     `json:"recorded_by"`
	RecordedAt       time.Time  `json:"recorded_at"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// DevicePickup records collection of the device for back-office repair.
type DevicePickup struct {
	PickupPersonName string    `json:"pickup_person_name"`
	PickupDate       time.Time `json:"pickup_date"`
	DeviceCondition  string    `json:"device_condition"`
	RecordedBy       string    `json:"recorded_by"`
	RecordedAt       time.Time `json:"recorded_at"`
}

// DeviceDelivery records the handover of the repaired device.
type DeviceDelivery struct {
	DeliveryPersonName string    `json:"delivery_person_name"`
	DeliveryDate       time.Time `json:"delivery_date"`
	DeliveredToName    string    `json:"delivered_to_name"`
	Notes              string    `json:"notes,omitempty"`
	RecordedBy         string    `json:"recorded_by"`
	RecordedAt         time.Time `json:"recorded_at"`
}
