package pitch

import (
	"strings"
	"testing"

	"pathsynch/internal/types"
)

func testProfile() types.BusinessProfile {
	return types.BusinessProfile{
		BusinessName: "Bluebird Coffee",
		Segment:      "Coffee Shop",
		SubIndustry:  "Specialty Roaster",
		State:        "OR",
		City:         "Portland",
		OwnerName:    "Dana Reyes",
		Email:        "dana@bluebird.coffee",
		Phone:        "503-555-0142",
		WebsiteURL:   "https://bluebird.coffee",
		GoogleRating: 4.6,
		NumReviews:   212,
	}
}

func TestRenderHTMLBasicStructure(t *testing.T) {
	html, err := RenderHTML(testProfile(), RenderOptions{})
	if err != nil {
		t.Fatalf("RenderHTML() error: %v", err)
	}

	for _, want := range []string{
		"<!DOCTYPE html>",
		"Bluebird Coffee",
		"Coffee Shop",
		"Specialty Roaster",
		"Portland, OR",
		"Dana Reyes",
		"mailto:dana@bluebird.coffee",
		"503-555-0142",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered document missing %q", want)
		}
	}
}

func TestRenderHTMLEscapesProfileFields(t *testing.T) {
	profile := testProfile()
	profile.BusinessName = `<script>alert("x")</script>`
	profile.CustomMessage = `Hi <b>there</b>`

	html, err := RenderHTML(profile, RenderOptions{})
	if err != nil {
		t.Fatalf("RenderHTML() error: %v", err)
	}

	if strings.Contains(html, "<script>") {
		t.Error("script tag survived escaping")
	}
	if strings.Contains(html, "<b>there</b>") {
		t.Error("custom message markup survived escaping")
	}
	if !strings.Contains(html, "&lt;script&gt;") {
		t.Error("expected escaped script tag in output")
	}
}

func TestRenderHTMLPaletteAndFont(t *testing.T) {
	tests := []struct {
		name        string
		opts        RenderOptions
		wantPalette string
		wantFont    string
	}{
		{
			name:        "defaults",
			opts:        RenderOptions{},
			wantPalette: defaultPalette,
			wantFont:    defaultFont,
		},
		{
			name:        "valid overrides",
			opts:        RenderOptions{Palette: "#ff6600", Font: "Georgia, serif"},
			wantPalette: "#ff6600",
			wantFont:    "Georgia, serif",
		},
		{
			name:        "invalid palette falls back",
			opts:        RenderOptions{Palette: "red; } body { display: none"},
			wantPalette: defaultPalette,
		},
		{
			name:        "invalid font falls back",
			opts:        RenderOptions{Font: "serif; background: url(//evil)"},
			wantFont:    defaultFont,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			html, err := RenderHTML(testProfile(), tc.opts)
			if err != nil {
				t.Fatalf("RenderHTML() error: %v", err)
			}
			if tc.wantPalette != "" && !strings.Contains(html, tc.wantPalette) {
				t.Errorf("document missing palette %q", tc.wantPalette)
			}
			if tc.wantFont != "" && !strings.Contains(html, tc.wantFont) {
				t.Errorf("document missing font %q", tc.wantFont)
			}
		})
	}
}

func TestRenderHTMLRatingSection(t *testing.T) {
	profile := testProfile()
	html, err := RenderHTML(profile, RenderOptions{})
	if err != nil {
		t.Fatalf("RenderHTML() error: %v", err)
	}
	if !strings.Contains(html, "Your Online Reputation") {
		t.Error("expected rating section for rated profile")
	}
	if !strings.Contains(html, "212 Google reviews") {
		t.Error("expected review count in rating section")
	}

	profile.NumReviews = 0
	html, err = RenderHTML(profile, RenderOptions{})
	if err != nil {
		t.Fatalf("RenderHTML() error: %v", err)
	}
	if strings.Contains(html, "Your Online Reputation") {
		t.Error("rating section should be omitted without reviews")
	}
}

func TestRenderHTMLNarrativeSection(t *testing.T) {
	html, err := RenderHTML(testProfile(), RenderOptions{Narrative: "Portland loves local roasters."})
	if err != nil {
		t.Fatalf("RenderHTML() error: %v", err)
	}
	if !strings.Contains(html, "Your Market Opportunity") {
		t.Error("expected narrative section")
	}
	if !strings.Contains(html, "Portland loves local roasters.") {
		t.Error("expected narrative copy in output")
	}

	html, err = RenderHTML(testProfile(), RenderOptions{})
	if err != nil {
		t.Fatalf("RenderHTML() error: %v", err)
	}
	if strings.Contains(html, "Your Market Opportunity") {
		t.Error("narrative section should be omitted without narrative")
	}
}

func TestStarRating(t *testing.T) {
	tests := []struct {
		rating float64
		want   string
	}{
		{0, "☆☆☆☆☆"},
		{0.4, "☆☆☆☆☆"},
		{0.5, "★☆☆☆☆"},
		{3, "★★★☆☆"},
		{4.6, "★★★★★"},
		{5, "★★★★★"},
		{-1, "☆☆☆☆☆"},
		{7, "★★★★★"},
	}
	for _, tc := range tests {
		if got := starRating(tc.rating); got != tc.want {
			t.Errorf("starRating(%v) = %q, want %q", tc.rating, got, tc.want)
		}
	}
}
