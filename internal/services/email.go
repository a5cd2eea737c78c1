package services

import (
	"bytes"
	"html/template"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/tbourn/go-autodaft/internal/domain"
)

const (
	subjectPrefix = "New Property Application: "
	notSpecified  = "Not specified"
)

var applicationEmailTmpl = template.Must(template.New("application").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #222;">
  <h2>New Property Application</h2>
  <p>Hi {{.Greeting}},</p>
  <p>We found a new listing matching your {{.Category}} search in {{.Area}} and applied on your behalf.</p>
  <table cellpadding="4">
    <tr><td><strong>Title</strong></td><td>{{.Title}}</td></tr>
    <tr><td><strong>Price</strong></td><td>{{.Price}}</td></tr>
    <tr><td><strong>Location</strong></td><td>{{.Address}}</td></tr>
    <tr><td><strong>Bedrooms</strong></td><td>{{.Bedrooms}}</td></tr>
    <tr><td><strong>Your budget</strong></td><td>{{.Budget}}</td></tr>
  </table>
  <p><a href="{{.URL}}">View the listing</a></p>
  <p style="font-size: 12px; color: #777;">Your search stays active until {{.Until}}.</p>
</body>
</html>
`))

type applicationEmail struct {
	Greeting string
	Category string
	Area     string
	Title    string
	Price    string
	Address  string
	Bedrooms string
	Budget   string
	URL      string
	Until    string
}

// ComposeApplicationEmail renders the subject and HTML body sent when an
// application is recorded for p. Listing values are HTML-escaped by the
// template; absent fields read "Not specified".
func ComposeApplicationEmail(p domain.Preference, l domain.Listing) (subject, body string, err error) {
	title := strings.TrimSpace(l.Title)
	if title == "" {
		title = notSpecified
	}

	caser := cases.Title(language.English)
	printer := message.NewPrinter(language.English)

	category := "rental"
	if p.ListingType == domain.CategoryShared {
		category = "house share"
	}

	bedrooms := notSpecified
	if l.Bedrooms > 0 {
		bedrooms = printer.Sprintf("%d", l.Bedrooms)
	}

	data := applicationEmail{
		Greeting: orDefault(caser.String(strings.TrimSpace(p.FirstName)), "there"),
		Category: category,
		Area:     orDefault(caser.String(strings.TrimSpace(p.Location)), notSpecified),
		Title:    title,
		Price:    orDefault(strings.TrimSpace(l.Price), notSpecified),
		Address:  orDefault(strings.TrimSpace(l.Address), notSpecified),
		Bedrooms: bedrooms,
		Budget:   printer.Sprintf("€%d – €%d", p.MinPrice, p.MaxPrice),
		URL:      l.Reference(),
		Until:    p.EndDate.UTC().Format("2 January 2006"),
	}

	var buf bytes.Buffer
	if err := applicationEmailTmpl.Execute(&buf, data); err != nil {
		return "", "", err
	}
	return subjectPrefix + title, buf.String(), nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
