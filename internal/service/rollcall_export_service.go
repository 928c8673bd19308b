package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/noah-isme/class-roster-api/internal/models"
	"github.com/noah-isme/class-roster-api/pkg/export"
	appErrors "github.com/noah-isme/class-roster-api/pkg/errors"
)

type rosterViewer interface {
	GetRosterView(ctx context.Context, sessionID string) (*models.RosterView, error)
}

type pdfRenderer interface {
	Render(sheet export.Sheet) ([]byte, error)
}

// RollCallExportService renders a printable roll-call sheet of a roster.
type RollCallExportService struct {
	roster rosterViewer
	pdf    pdfRenderer
	clock  Clock
}

// NewRollCallExportService constructs RollCallExportService.
func NewRollCallExportService(roster rosterViewer, pdf pdfRenderer, clock Clock) *RollCallExportService {
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &RollCallExportService{roster: roster, pdf: pdf, clock: clock}
}

// RenderPDF returns the sheet bytes and a download file name.
func (s *RollCallExportService) RenderPDF(ctx context.Context, sessionID string) ([]byte, string, error) {
	view, err := s.roster.GetRosterView(ctx, sessionID)
	if err != nil {
		return nil, "", err
	}
	payload, err := s.pdf.Render(RollCallSheet(view, s.clock.Now()))
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roll-call sheet")
	}
	return payload, fmt.Sprintf("roll-call-%s.pdf", sessionID), nil
}

// RollCallSheet lists occupied seats in seat order.
func RollCallSheet(view *models.RosterView, printedAt time.Time) export.Sheet {
	title := "Roll call"
	if view.Session.Name != nil && *view.Session.Name != "" {
		title = "Roll call: " + *view.Session.Name
	}
	details := []string{
		fmt.Sprintf("Session %s, %s to %s", view.Session.ID,
			view.Session.StartTime.In(printedAt.Location()).Format("2006-01-02 15:04"),
			view.Session.EndTime.In(printedAt.Location()).Format("15:04")),
		fmt.Sprintf("Enrolled %d of %d seats", view.Enrolled, view.Capacity),
	}
	if view.Session.Room != nil {
		details = append(details, "Room: "+*view.Session.Room)
	}
	if view.Session.TeacherName != nil {
		details = append(details, "Teacher: "+*view.Session.TeacherName)
	}
	details = append(details, "Printed "+printedAt.Format("2006-01-02 15:04 MST"))

	sheet := export.Sheet{
		Title:   title,
		Details: details,
		Headers: []string{"Seat", "Row", "Col", "Participant", "Status", "Entitlement"},
		Widths:  []float64{15, 12, 12, 71, 30, 50},
	}
	for _, seat := range view.Seats {
		if seat.State != models.SeatOccupied || seat.Enrollment == nil {
			continue
		}
		name := seat.Enrollment.ParticipantID
		if seat.Participant != nil && seat.Participant.Name != "" {
			name = seat.Participant.Name
		}
		sheet.Rows = append(sheet.Rows, []string{
			strconv.Itoa(seat.Index + 1),
			strconv.Itoa(seat.Row + 1),
			strconv.Itoa(seat.Column + 1),
			name,
			string(seat.Enrollment.Status),
			entitlementLabel(seat.Entitlement),
		})
	}
	return sheet
}

func entitlementLabel(summary *models.EntitlementSummary) string {
	if summary == nil {
		return ""
	}
	label := summary.TierName
	if label == "" {
		label = summary.ID
	}
	if summary.Unlimited {
		return label + " (unlimited)"
	}
	if summary.RemainingUses != nil {
		return fmt.Sprintf("%s (%d left)", label, *summary.RemainingUses)
	}
	return label
}
