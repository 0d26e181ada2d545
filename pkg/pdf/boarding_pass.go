package pdf

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/phpdave11/gofpdf"
)

// BoardingPassData carries the fields printed on a boarding pass
type BoardingPassData struct {
	PassengerName    string
	TicketCode       string
	BookingReference string
	FlightNumber     string
	SeatNumber       string
	DepartureTime    string
}

// RenderBoardingPass renders a single-page boarding pass PDF and returns the
// document bytes and a download filename
func RenderBoardingPass(d BoardingPassData) ([]byte, string, error) {
	pdf := gofpdf.New("L", "mm", "A5", "")
	pdf.SetTitle("Boarding Pass", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.Cell(0, 12, "BOARDING PASS")
	pdf.Ln(16)

	pdf.SetFont("Helvetica", "", 12)
	lines := []string{
		fmt.Sprintf("Passenger : %s", orDash(d.PassengerName)),
		fmt.Sprintf("Flight    : %s", orDash(d.FlightNumber)),
		fmt.Sprintf("Departure : %s", orDash(d.DepartureTime)),
		fmt.Sprintf("Seat      : %s", orDash(d.SeatNumber)),
		fmt.Sprintf("Booking   : %s", orDash(d.BookingReference)),
		fmt.Sprintf("Ticket    : %s", orDash(d.TicketCode)),
	}
	for _, line := range lines {
		pdf.Cell(0, 8, line)
		pdf.Ln(8)
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.MultiCell(0, 5, "Present this pass with a valid travel document at the gate. Boarding closes 20 minutes before departure.", "", "", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, "", err
	}

	filename := fmt.Sprintf("BOARDINGPASS_%s_%s.pdf", orDash(d.BookingReference), filenamePart(d.PassengerName))
	return buf.Bytes(), filename, nil
}

func orDash(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "-"
	}
	return v
}

func filenamePart(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "NA"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "_", "\\", "_", ":", "_")
	s = replacer.Replace(s)
	if len(s) > 40 {
		s = s[:40]
	}
	return s
}
