// Package render lays out report cards as PDF documents and dashboard charts as PNG images.
package render

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"report-card-service/internal/domain"
	"report-card-service/internal/grading"
)

// ContentType is the MIME type of a rendered report card.
const ContentType = "application/pdf"

const (
	margin    = 72.0 // one inch in points
	rowHeight = 20.0
	dateFmt   = "2006-01-02"
)

var (
	statsHeader    = []string{"Metric", "Value"}
	statsWidths    = []float64{216, 144}
	activityHeader = []string{"Activity", "Score", "Date", "Subject"}
	activityWidths = []float64{108, 72, 108, 108}

	headerFill = [3]int{128, 128, 128}
	headerText = [3]int{245, 245, 245}
	bodyFill   = [2][3]int{{245, 245, 220}, {255, 255, 255}}
)

// Renderer produces report card PDFs. The zero value renders uncompressed streams.
type Renderer struct {
	compress bool
	now      func() time.Time
}

// NewRenderer returns a renderer that writes compressed PDF streams.
func NewRenderer() *Renderer {
	return &Renderer{compress: true, now: time.Now}
}

// BuildReportCard assembles the layout model of a report card. Records are
// copied and ordered chronologically; the caller's slice is left untouched.
func BuildReportCard(summary domain.SummaryStatistics, records []domain.ActivityRecord, title domain.TitleContext, classMax int) domain.ReportCard {
	ordered := make([]domain.ActivityRecord, len(records))
	copy(ordered, records)
	grading.SortChronologically(ordered)

	card := domain.ReportCard{
		Title:         "Comprehensive Report Card for " + title.StudentName,
		Summary:       summary,
		Records:       ordered,
		Comment:       grading.CommentFor(summary.MeanScore),
		ClassMaxScore: classMax,
	}
	if title.SubjectName != "" {
		card.Title = "Report Card for " + title.StudentName
		card.Subtitle = "Subject: " + title.SubjectName
	}
	return card
}

// StatsTable returns the metric/value table of a card, header row first.
func StatsTable(card domain.ReportCard) [][]string {
	s := card.Summary
	return [][]string{
		statsHeader,
		{"Average Score", strconv.FormatFloat(s.MeanScore, 'f', 2, 64)},
		{"Maximum Score", strconv.Itoa(s.MaxScore)},
		{"Minimum Score", strconv.Itoa(s.MinScore)},
		{"Total Activities", strconv.Itoa(s.ActivityCount)},
		{"Status", string(s.Status)},
	}
}

// ActivityTable returns the itemized activity table of a card, header row first.
// A card without records yields the header row alone.
func ActivityTable(card domain.ReportCard) [][]string {
	caser := cases.Title(language.English)
	rows := make([][]string, 0, len(card.Records)+1)
	rows = append(rows, activityHeader)
	for _, r := range card.Records {
		rows = append(rows, []string{
			caser.String(string(r.Activity)),
			strconv.Itoa(r.Score),
			r.Timestamp.Format(dateFmt),
			r.Subject,
		})
	}
	return rows
}

// RenderReport lays out a report card and returns the finished PDF document.
func (r *Renderer) RenderReport(summary domain.SummaryStatistics, records []domain.ActivityRecord, title domain.TitleContext, classMax int) ([]byte, error) {
	return r.Render(BuildReportCard(summary, records, title, classMax))
}

// Render draws a prepared card.
func (r *Renderer) Render(card domain.ReportCard) ([]byte, error) {
	pdf := fpdf.New("P", "pt", "Letter", "")
	pdf.SetCompression(r.compress)
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	pdf.SetTitle(card.Title, false)
	pdf.SetCreator("report-card-service", false)
	if r.now != nil {
		pdf.SetCreationDate(r.now())
	}
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 28, tr(card.Title), "", 1, "C", false, 0, "")
	if card.Subtitle != "" {
		pdf.SetFont("Helvetica", "", 12)
		pdf.CellFormat(0, 18, tr(card.Subtitle), "", 1, "L", false, 0, "")
	}
	pdf.Ln(12)

	drawTable(pdf, tr, statsWidths, StatsTable(card))
	pdf.Ln(18)
	drawTable(pdf, tr, activityWidths, ActivityTable(card))
	pdf.Ln(18)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(0, 18, tr(fmt.Sprintf("Highest Marks Achieved by Any Student in the Class: %d", card.ClassMaxScore)), "", 1, "L", false, 0, "")
	pdf.Ln(6)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 18, "Comments:", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 12)
	pdf.MultiCell(0, 16, tr(card.Comment), "", "L", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render report card: %w", err)
	}
	return buf.Bytes(), nil
}

// drawTable centers a grid on the page. rows[0] is the header.
func drawTable(pdf *fpdf.Fpdf, tr func(string) string, widths []float64, rows [][]string) {
	pageWidth, _ := pdf.GetPageSize()
	total := 0.0
	for _, w := range widths {
		total += w
	}
	left := (pageWidth - total) / 2

	pdf.SetDrawColor(0, 0, 0)
	pdf.SetLineWidth(1)
	for i, row := range rows {
		if i == 0 {
			pdf.SetFont("Helvetica", "B", 11)
			pdf.SetFillColor(headerFill[0], headerFill[1], headerFill[2])
			pdf.SetTextColor(headerText[0], headerText[1], headerText[2])
		} else {
			fill := bodyFill[(i-1)%2]
			pdf.SetFont("Helvetica", "", 11)
			pdf.SetFillColor(fill[0], fill[1], fill[2])
			pdf.SetTextColor(0, 0, 0)
		}
		pdf.SetX(left)
		for j, cell := range row {
			pdf.CellFormat(widths[j], rowHeight, tr(cell), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.SetTextColor(0, 0, 0)
}

// ReportFilename names the download of a report card.
func ReportFilename(title domain.TitleContext) string {
	name := safeFilePart(title.StudentName)
	if title.SubjectName == "" {
		return name + "_Comprehensive_Report_Card.pdf"
	}
	return name + "_" + safeFilePart(title.SubjectName) + "_Report_Card.pdf"
}

func safeFilePart(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '"', ':', '*', '?', '<', '>', '|':
			return '_'
		case ' ':
			return '_'
		}
		return r
	}, strings.TrimSpace(s))
}
