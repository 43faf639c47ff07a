package workflow

import (
	"context"
	"strings"
	"time"

	"github.com/spec-kit/service-workflow/internal/domain"
)

// guardInput bundles everything a guard may consult: the loaded aggregate,
// the action payload, and the external collaborators.
type guardInput struct {
	ticket      *domain.ServiceTicket
	payload     ActionPayload
	quotations  QuotationReader
	directory   TechnicianDirectory
	attachments AttachmentCounter
	opts        Options
}

func guardAssign(ctx context.Context, g *guardInput) ([]string, error) {
	techID := strings.TrimSpace(g.payload.TechnicianID)
	if techID == "" {
		return []string{"technician_id"}, nil
	}
	if g.directory != nil {
		active, err := g.directory.IsActiveTechnician(ctx, techID)
		if err != nil {
			return nil, err
		}
		if !active {
			return []string{"technician_id"}, nil
		}
	}
	return nil, nil
}

func guardAcceptAssignment(_ context.Context, g *guardInput) ([]string, error) {
	if g.ticket.AssignedTo == nil {
		return []string{"assigned_to"}, nil
	}
	return nil, nil
}

func guardStartWork(_ context.Context, g *guardInput) ([]string, error) {
	if g.ticket.AssignedTo == nil {
		return []string{"assigned_to"}, nil
	}
	return nil, nil
}

func guardQuotationApproved(ctx context.Context, g *guardInput) ([]string, error) {
	status, err := g.quotations.StatusForTicket(ctx, g.ticket.ID)
	if err != nil {
		return nil, err
	}
	if status != domain.QuotationStatusApproved {
		return []string{"quotation_status"}, nil
	}
	return nil, nil
}

func guardSubmitDiagnosis(_ context.Context, g *guardInput) ([]string, error) {
	var missing []string
	if g.ticket.Diagnosis != nil {
		missing = append(missing, "diagnosis")
	}
	if strings.TrimSpace(g.payload.ProblemIdentified) == "" {
		missing = append(missing, "problem_identified")
	}
	return missing, nil
}

func guardSelectPath(_ context.Context, g *guardInput) ([]string, error) {
	var missing []string
	if g.ticket.Diagnosis == nil {
		missing = append(missing, "diagnosis")
	}
	if g.ticket.ResolutionPath != nil {
		missing = append(missing, "resolution_path")
	}
	if !g.payload.Path.Valid() {
		missing = append(missing, "path")
	}
	if g.payload.Path == domain.PathResolvedOnVisit && strings.TrimSpace(g.payload.ResolutionSummary) == "" {
		missing = append(missing, "resolution_summary")
	}
	return missing, nil
}

func guardRecordPickup(_ context.Context, g *guardInput) ([]string, error) {
	var missing []string
	if strings.TrimSpace(g.payload.PickupPersonName) == "" {
		missing = append(missing, "pickup_person_name")
	}
	if g.payload.PickupDate == nil {
		missing = append(missing, "pickup_date")
	}
	if strings.TrimSpace(g.payload.DeviceCondition) == "" {
		missing = append(missing, "device_condition")
	}
	return missing, nil
}

func guardWarrantyDecision(_ context.Context, g *guardInput) ([]string, error) {
	var missing []string
	if g.ticket.WarrantyType != nil {
		missing = append(missing, "warranty_type")
	} else if !g.payload.WarrantyType.Valid() {
		missing = append(missing, "warranty_type")
	}
	return missing, nil
}

func guardStartAMCRepair(_ context.Context, g *guardInput) ([]string, error) {
	var missing []string
	if g.ticket.WarrantyType == nil || *g.ticket.WarrantyType != domain.WarrantyUnderAMC {
		missing = append(missing, "warranty_type")
	}
	if g.ticket.AMCRepair != nil {
		missing = append(missing, "amc_repair")
	}
	if strings.TrimSpace(g.payload.IssueIdentified) == "" {
		missing = append(missing, "issue_identified")
	}
	return missing, nil
}

func guardUpdateAMCRepair(_ context.Context, g *guardInput) ([]string, error) {
	if g.ticket.AMCRepair == nil {
		return []string{"amc_repair"}, nil
	}
	return nil, nil
}

func guardCompleteAMCRepair(ctx context.Context, g *guardInput) ([]string, error) {
	if g.ticket.AMCRepair == nil {
		return []string{"amc_repair"}, nil
	}
	return guardRepairEvidence(ctx, g)
}

func guardRecordOEMRepair(_ context.Context, g *guardInput) ([]string, error) {
	var missing []string
	if g.ticket.WarrantyType == nil || *g.ticket.WarrantyType != domain.WarrantyUnderOEM {
		missing = append(missing, "warranty_type")
	}
	if g.ticket.OEMRepair != nil {
		missing = append(missing, "oem_repair")
	}
	if strings.TrimSpace(g.payload.OEMName) == "" {
		missing = append(missing, "oem_name")
	}
	return missing, nil
}

func guardUpdateOEMRepair(_ context.Context, g *guardInput) ([]string, error) {
	if g.ticket.OEMRepair == nil {
		return []string{"oem_repair"}, nil
	}
	return nil, nil
}

func guardCompleteOEMRepair(ctx context.Context, g *guardInput) ([]string, error) {
	if g.ticket.OEMRepair == nil {
		return []string{"oem_repair"}, nil
	}
	if g.ticket.OEMRepair.ReceivedBackDate == nil {
		return []string{"received_back_date"}, nil
	}
	return guardRepairEvidence(ctx, g)
}

// guardRepairEvidence enforces the attachment policy on repair completion:
// at least one stored attachment must document the repair.
func guardRepairEvidence(ctx context.Context, g *guardInput) ([]string, error) {
	if !g.opts.RequireRepairEvidence || g.attachments == nil {
		return nil, nil
	}
	count, err := g.attachments.CountByTicket(ctx, g.ticket.ID)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return []string{"attachments"}, nil
	}
	return nil, nil
}

func guardRecordDelivery(_ context.Context, g *guardInput) ([]string, error) {
	var missing []string
	if strings.TrimSpace(g.payload.DeliveryPersonName) == "" {
		missing = append(missing, "delivery_person_name")
	}
	if g.payload.DeliveryDate == nil {
		missing = append(missing, "delivery_date")
	}
	if strings.TrimSpace(g.payload.DeliveredToName) == "" {
		missing = append(missing, "delivered_to_name")
	}
	return missing, nil
}

func guardComplete(ctx context.Context, g *guardInput) ([]string, error) {
	var missing []string
	if strings.TrimSpace(g.payload.ResolutionSummary) == "" {
		missing = append(missing, "resolution_summary")
	}
	// A device sent to the back office completes through record_delivery;
	// the two completion routes are mutually exclusive.
	if g.ticket.ResolutionPath != nil && *g.ticket.ResolutionPath == domain.PathDeviceToBackoffice {
		missing = append(missing, "resolution_path")
	}
	if g.ticket.Status == domain.TicketStatusPendingParts {
		quotationMissing, err := guardQuotationApproved(ctx, g)
		if err != nil {
			return nil, err
		}
		missing = append(missing, quotationMissing...)
	}
	return missing, nil
}

func guardCancel(_ context.Context, g *guardInput) ([]string, error) {
	if strings.TrimSpace(g.payload.CancellationReason) == "" {
		return []string{"cancellation_reason"}, nil
	}
	return nil, nil
}

func mutateAssign(t *domain.ServiceTicket, p ActionPayload, _ Actor, _ time.Time) {
	techID := strings.TrimSpace(p.TechnicianID)
	t.AssignedTo = &techID
}

func mutateSubmitDiagnosis(t *domain.ServiceTicket, p ActionPayload, actor Actor, now time.Time) {
	t.Diagnosis = &domain.Diagnosis{
		ProblemIdentified: strings.TrimSpace(p.ProblemIdentified),
		Details:           strings.TrimSpace(p.DiagnosisDetails),
		DiagnosedBy:       actor.ID,
		DiagnosedAt:       now,
	}
}

func mutateSelectPath(t *domain.ServiceTicket, p ActionPayload, _ Actor, _ time.Time) {
	path := p.Path
	t.ResolutionPath = &path
	if path == domain.PathResolvedOnVisit {
		summary := strings.TrimSpace(p.ResolutionSummary)
		t.ResolutionSummary = &summary
	}
}

func mutateRecordPickup(t *domain.ServiceTicket, p ActionPayload, actor Actor, now time.Time) {
	t.DevicePickup = &domain.DevicePickup{
		PickupPersonName: strings.TrimSpace(p.PickupPersonName),
		PickupDate:       *p.PickupDate,
		DeviceCondition:  strings.TrimSpace(p.DeviceCondition),
		RecordedBy:       actor.ID,
		RecordedAt:       now,
	}
}

func mutateWarrantyDecision(t *domain.ServiceTicket, p ActionPayload, _ Actor, _ time.Time) {
	warranty := p.WarrantyType
	t.WarrantyType = &warranty
}

func mutateStartAMCRepair(t *domain.ServiceTicket, p ActionPayload, actor Actor, now time.Time) {
	t.AMCRepair = &domain.AMCRepair{
		IssueIdentified: strings.TrimSpace(p.IssueIdentified),
		RepairActions:   p.RepairActions,
		PartsReplaced:   p.PartsReplaced,
		StartedBy:       actor.ID,
		StartedAt:       now,
	}
}

func mutateUpdateAMCRepair(t *domain.ServiceTicket, p ActionPayload, _ Actor, now time.Time) {
	t.AMCRepair.RepairActions = append(t.AMCRepair.RepairActions, p.RepairActions...)
	t.AMCRepair.PartsReplaced = append(t.AMCRepair.PartsReplaced, p.PartsReplaced...)
	t.AMCRepair.UpdatedAt = &now
}

func mutateCompleteAMCRepair(t *domain.ServiceTicket, _ ActionPayload, _ Actor, now time.Time) {
	t.AMCRepair.CompletedAt = &now
}

func mutateRecordOEMRepair(t *domain.ServiceTicket, p ActionPayload, actor Actor, now time.Time) {
	t.OEMRepair = &domain.OEMRepair{
		OEMName:          strings.TrimSpace(p.OEMName),
		OEMTicketRef:     strings.TrimSpace(p.OEMTicketRef),
		SentDate:         p.SentDate,
		ReceivedBackDate: p.ReceivedBackDate,
		Notes:            strings.TrimSpace(p.Notes),
		RecordedBy:       actor.ID,
		RecordedAt:       now,
	}
}

func mutateUpdateOEMRepair(t *domain.ServiceTicket, p ActionPayload, _ Actor, now time.Time) {
	if p.SentDate != nil {
		t.OEMRepair.SentDate = p.SentDate
	}
	if p.ReceivedBackDate != nil {
		t.OEMRepair.ReceivedBackDate = p.ReceivedBackDate
	}
	if strings.TrimSpace(p.OEMTicketRef) != "" {
		t.OEMRepair.OEMTicketRef = strings.TrimSpace(p.OEMTicketRef)
	}
	if strings.TrimSpace(p.Notes) != "" {
		t.OEMRepair.Notes = strings.TrimSpace(p.Notes)
	}
	t.OEMRepair.UpdatedAt = &now
}

func mutateCompleteOEMRepair(t *domain.ServiceTicket, _ ActionPayload, _ Actor, now time.Time) {
	t.OEMRepair.CompletedAt = &now
}

func mutateRecordDelivery(t *domain.ServiceTicket, p ActionPayload, actor Actor, now time.Time) {
	t.DeviceDelivery = &domain.DeviceDelivery{
		DeliveryPersonName: strings.TrimSpace(p.DeliveryPersonName),
		DeliveryDate:       *p.DeliveryDate,
		DeliveredToName:    strings.TrimSpace(p.DeliveredToName),
		Notes:              strings.TrimSpace(p.Notes),
		RecordedBy:         actor.ID,
		RecordedAt:         now,
	}
}

func mutateComplete(t *domain.ServiceTicket, p ActionPayload, _ Actor, _ time.Time) {
	summary := strings.TrimSpace(p.ResolutionSummary)
	t.ResolutionSummary = &summary
}

func mutateCancel(t *domain.ServiceTicket, p ActionPayload, _ Actor, _ time.Time) {
	reason := strings.TrimSpace(p.CancellationReason)
	t.CancellationReason = &reason
}
