// Package pitch turns structured business profiles into deliverables: HTML
// pitch documents, AI-written narratives, slide decks, and ZIP bundles. The
// renderers are pure functions; only the narrative generator talks to the
// outside world.
package pitch

import (
	"html/template"
	"regexp"
	"strings"

	"pathsynch/internal/types"
)

// Render defaults. Overrides pass through sanitizers before reaching the
// template, so an attacker-controlled palette can never break out of the
// style attribute.
const (
	defaultPalette = "#1a73e8"
	defaultFont    = "Helvetica, Arial, sans-serif"
)

var (
	paletteRe = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
	fontRe    = regexp.MustCompile(`^[a-zA-Z0-9 ,'\-]+$`)
)

// RenderOptions customize the pitch document. All fields are optional.
type RenderOptions struct {
	// Palette is the accent color as a #RRGGBB hex value.
	Palette string
	// Font is a CSS font-family list.
	Font string
	// Narrative is AI-written market copy inserted as its own section.
	Narrative string
}

// starRating renders a 0-5 rating as five star glyphs, rounding half-stars
// up. Out-of-range values are clamped.
func starRating(rating float64) string {
	if rating < 0 {
		rating = 0
	}
	if rating > 5 {
		rating = 5
	}
	filled := int(rating + 0.5)

	var b strings.Builder
	for i := 0; i < 5; i++ {
		if i < filled {
			b.WriteRune('★')
		} else {
			b.WriteRune('☆')
		}
	}
	return b.String()
}

var pitchTemplate = template.Must(template.New("pitch").Funcs(template.FuncMap{
	"stars": starRating,
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Profile.BusinessName}} — Growth Proposal</title>
<style>
  body { font-family: {{.Font}}; margin: 0; color: #202124; }
  .header { background: {{.Palette}}; color: #ffffff; padding: 32px 40px; }
  .header h1 { margin: 0 0 4px 0; font-size: 28px; }
  .header p { margin: 0; opacity: 0.85; }
  .section { padding: 24px 40px; border-bottom: 1px solid #e8eaed; }
  .section h2 { font-size: 18px; color: {{.Palette}}; margin: 0 0 12px 0; }
  .rating { font-size: 20px; letter-spacing: 2px; }
  .rating .count { font-size: 14px; color: #5f6368; letter-spacing: normal; }
  .cta { padding: 32px 40px; background: #f8f9fa; }
  .cta a { color: {{.Palette}}; font-weight: bold; }
</style>
</head>
<body>
<div class="header">
  <h1>{{.Profile.BusinessName}}</h1>
  <p>{{.Profile.Segment}}{{if .Profile.SubIndustry}} · {{.Profile.SubIndustry}}{{end}} — {{.Profile.City}}, {{.Profile.State}}</p>
</div>
{{if .HasRating}}
<div class="section">
  <h2>Your Online Reputation</h2>
  <p class="rating">{{stars .Profile.GoogleRating}} <span class="count">{{printf "%.1f" .Profile.GoogleRating}} from {{.Profile.NumReviews}} Google reviews</span></p>
</div>
{{end}}
<div class="section">
  <h2>Hello {{.Profile.OwnerName}},</h2>
  {{if .Profile.CustomMessage}}<p>{{.Profile.CustomMessage}}</p>{{else}}<p>We looked at how {{.Profile.BusinessName}} shows up online in {{.Profile.City}} and put together a plan to bring you more customers.</p>{{end}}
</div>
{{if .Narrative}}
<div class="section">
  <h2>Your Market Opportunity</h2>
  <p>{{.Narrative}}</p>
</div>
{{end}}
<div class="cta">
  <h2>Let's Talk</h2>
  <p>Reach us any time{{if .Profile.Phone}} at {{.Profile.Phone}}{{end}} or reply to this proposal at <a href="mailto:{{.Profile.Email}}">{{.Profile.Email}}</a>.{{if .Profile.WebsiteURL}} We'd love to show you what's possible for {{.Profile.WebsiteURL}}.{{end}}</p>
</div>
</body>
</html>
`))

// pitchData is the template context for one render.
type pitchData struct {
	Profile   types.BusinessProfile
	Palette   template.CSS
	Font      template.CSS
	Narrative string
	HasRating bool
}

// RenderHTML produces the pitch document for a business profile. Profile
// fields are auto-escaped by html/template; palette and font pass a strict
// whitelist or fall back to defaults.
func RenderHTML(profile types.BusinessProfile, opts RenderOptions) (string, error) {
	palette := defaultPalette
	if paletteRe.MatchString(opts.Palette) {
		palette = opts.Palette
	}
	font := defaultFont
	if opts.Font != "" && fontRe.MatchString(opts.Font) {
		font = opts.Font
	}

	data := pitchData{
		Profile:   profile,
		Palette:   template.CSS(palette),
		Font:      template.CSS(font),
		Narrative: opts.Narrative,
		HasRating: profile.GoogleRating > 0 && profile.NumReviews > 0,
	}

	var b strings.Builder
	if err := pitchTemplate.Execute(&b, data); err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to render pitch document", err)
	}
	return b.String(), nil
}
