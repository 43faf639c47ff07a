package workflow

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spec-kit/service-workflow/internal/domain"
)

// Action names a workflow operation. Actions are the only mutation path for
// a ticket; legality is decided by the transition table, never by callers.
type Action string

const (
	ActionAssign                 Action = "assign"
	ActionReassign               Action = "reassign"
	ActionAcceptAssignment       Action = "accept_assignment"
	ActionStartWork              Action = "start_work"
	ActionMarkPendingParts       Action = "mark_pending_parts"
	ActionResumeFromParts        Action = "resume_from_parts"
	ActionSubmitDiagnosis        Action = "submit_diagnosis"
	ActionSelectPath             Action = "select_path"
	ActionRecordPickup           Action = "record_pickup"
	ActionRecordWarrantyDecision Action = "record_warranty_decision"
	ActionStartAMCRepair         Action = "start_amc_repair"
	ActionUpdateAMCRepair        Action = "update_amc_repair"
	ActionCompleteAMCRepair      Action = "complete_amc_repair"
	ActionRecordOEMRepair        Action = "record_oem_repair"
	ActionUpdateOEMRepair        Action = "update_oem_repair"
	ActionCompleteOEMRepair      Action = "complete_oem_repair"
	ActionDispatchDelivery       Action = "dispatch_delivery"
	ActionRecordDelivery         Action = "record_delivery"
	ActionComplete               Action = "complete"
	ActionClose                  Action = "close"
	ActionCancel                 Action = "cancel"

	// ActionIntake is recorded as the first history entry on creation; it
	// is not applicable through Apply.
	ActionIntake Action = "intake"
)

// ParseAction normalizes and validates an action name.
func ParseAction(raw string) (Action, error) {
	normalized := Action(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "-", "_"))
	if _, ok := transitionTable[normalized]; !ok {
		return "", fmt.Errorf("invalid action %q (valid: %s)", raw, strings.Join(actionNames(), ", "))
	}
	return normalized, nil
}

func actionNames() []string {
	names := make([]string, 0, len(transitionTable))
	for action := range transitionTable {
		names = append(names, string(action))
	}
	sort.Strings(names)
	return names
}

// Actor identifies who performed an action.
type Actor struct {
	ID   string
	Type domain.SubjectType
}

// SystemActor is used for engine-internal mutations such as SLA sweeps.
var SystemActor = Actor{ID: "system", Type: domain.SubjectTypeSystem}

// ActionPayload carries the per-action input fields. Each guard reads only
// the fields its action requires; everything else is ignored.
type ActionPayload struct {
	Notes string `json:"notes,omitempty"`

	// assign / reassign
	TechnicianID string `json:"technician_id,omitempty"`

	// submit_diagnosis
	ProblemIdentified string `json:"problem_identified,omitempty"`
	DiagnosisDetails  string `json:"diagnosis_details,omitempty"`

	// select_path / complete
	Path              domain.ResolutionPath `json:"path,omitempty"`
	ResolutionSummary string                `json:"resolution_summary,omitempty"`

	// record_pickup
	PickupPersonName string     `json:"pickup_person_name,omitempty"`
	PickupDate       *time.Time `json:"pickup_date,omitempty"`
	DeviceCondition  string     `json:"device_condition,omitempty"`

	// record_warranty_decision
	WarrantyType domain.WarrantyType `json:"warranty_type,omitempty"`

	// start_amc_repair / update_amc_repair
	IssueIdentified string   `json:"issue_identified,omitempty"`
	RepairActions   []string `json:"repair_actions,omitempty"`
	PartsReplaced   []string `json:"parts_replaced,omitempty"`

	// record_oem_repair / update_oem_repair
	OEMName          string     `json:"oem_name,omitempty"`
	OEMTicketRef     string     `json:"oem_ticket_ref,omitempty"`
	SentDate         *time.Time `json:"sent_date,omitempty"`
	ReceivedBackDate *time.Time `json:"received_back_date,omitempty"`

	// record_delivery
	DeliveryPersonName string     `json:"delivery_person_name,omitempty"`
	DeliveryDate       *time.Time `json:"delivery_date,omitempty"`
	DeliveredToName    string     `json:"delivered_to_name,omitempty"`

	// cancel
	CancellationReason string `json:"cancellation_reason,omitempty"`
}
