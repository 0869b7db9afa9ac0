package email

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Receipt is the data rendered into a donation thank-you email.
type Receipt struct {
	CenterName string
	DonationID string
	Donor      string
	Kind       string
	Quantity   float64
	Unit       string
	ValueCents int64
	ReceivedAt time.Time
}

var receiptTemplate = template.Must(template.New("receipt").Funcs(template.FuncMap{
	"money": formatCents,
	"qty":   formatQuantity,
}).Parse(`# Thank you, {{.Donor}}

{{.CenterName}} received your donation on **{{.ReceivedAt.Format "Monday 2 January 2006"}}**.

| Item | Detail |
|---|---|
| Kind | {{.Kind}} |
{{- if .Quantity}}
| Quantity | {{qty .Quantity}}{{if .Unit}} {{.Unit}}{{end}} |
{{- end}}
{{- if .ValueCents}}
| Value | {{money .ValueCents}} |
{{- end}}
| Reference | ` + "`{{.DonationID}}`" + ` |

Every gift goes straight to meals, showers and laundry for our guests.
`))

var markdown = goldmark.New(goldmark.WithExtensions(extension.Table))

// RenderReceipt builds the receipt email for to.
// POST: Text holds the Markdown source and HTML its rendering
func RenderReceipt(r Receipt, to string) (SendRequest, error) {
	var md bytes.Buffer
	if err := receiptTemplate.Execute(&md, r); err != nil {
		return SendRequest{}, fmt.Errorf("render receipt: %w", err)
	}
	var html bytes.Buffer
	if err := markdown.Convert(md.Bytes(), &html); err != nil {
		return SendRequest{}, fmt.Errorf("convert receipt: %w", err)
	}
	return SendRequest{
		To:      []string{to},
		Subject: "Thank you for your donation to " + r.CenterName,
		HTML:    html.String(),
		Text:    md.String(),
		Tags:    map[string]string{"category": "donation_receipt"},
	}, nil
}

func formatCents(c int64) string {
	return fmt.Sprintf("$%d.%02d", c/100, c%100)
}

func formatQuantity(q float64) string {
	s := fmt.Sprintf("%.2f", q)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
