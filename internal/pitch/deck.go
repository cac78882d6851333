package pitch

import (
	"fmt"
	"strings"

	"pathsynch/internal/types"
)

const defaultDeckTheme = "default"

// BuildDeck assembles the fixed six-slide outline from a business profile
// and its narrative. Pure function: no I/O, deterministic for given inputs.
func BuildDeck(profile types.BusinessProfile, narrative *types.Narrative, theme string) []types.Slide {
	if theme == "" {
		theme = defaultDeckTheme
	}
	_ = theme // themes share the same outline; styling is a render concern

	location := profile.City
	if profile.State != "" {
		if location != "" {
			location += ", "
		}
		location += profile.State
	}

	slides := []types.Slide{
		{
			Title: profile.BusinessName,
			Bullets: []string{
				fmt.Sprintf("%s · %s", profile.Segment, location),
				fmt.Sprintf("Prepared for %s", profile.OwnerName),
			},
			Notes: "Open with the business identity and who this pitch is for.",
		},
		{
			Title: "The Problem",
			Bullets: []string{
				fmt.Sprintf("Local %s businesses compete for the same customers every day", strings.ToLower(profile.Segment)),
				"Word of mouth alone no longer fills the pipeline",
				"Owners lack the time to craft a consistent sales story",
			},
		},
		{
			Title:   "Our Solution",
			Bullets: solutionBullets(profile, narrative),
			Notes:   "Anchor the solution in the narrative's strongest claim.",
		},
		{
			Title: "The Market",
			Bullets: []string{
				fmt.Sprintf("%s in %s", profile.Segment, locationOr(location, "your area")),
				"Customers increasingly choose businesses they can evaluate online",
			},
		},
		{
			Title:   "Social Proof",
			Bullets: socialProofBullets(profile),
		},
		{
			Title:   "Next Steps",
			Bullets: ctaBullets(profile),
			Notes:   "Close with one concrete ask.",
		},
	}

	return slides
}

func solutionBullets(profile types.BusinessProfile, narrative *types.Narrative) []string {
	bullets := []string{
		fmt.Sprintf("A tailored pitch that tells %s's story", profile.BusinessName),
	}
	if narrative != nil && narrative.Content != "" {
		if lead := firstSentence(narrative.Content); lead != "" {
			bullets = append(bullets, lead)
		}
	}
	if profile.CustomMessage != "" {
		bullets = append(bullets, profile.CustomMessage)
	}
	return bullets
}

func socialProofBullets(profile types.BusinessProfile) []string {
	if profile.GoogleRating > 0 && profile.NumReviews > 0 {
		return []string{
			fmt.Sprintf("%.1f-star average across %d reviews", profile.GoogleRating, profile.NumReviews),
			"Real customers vouching for the work",
		}
	}
	return []string{
		"Every happy customer is a referral waiting to happen",
		"Start collecting reviews today to build momentum",
	}
}

func ctaBullets(profile types.BusinessProfile) []string {
	bullets := []string{fmt.Sprintf("Reach out to %s", profile.OwnerName)}
	if profile.Phone != "" {
		bullets = append(bullets, fmt.Sprintf("Call %s", profile.Phone))
	}
	if profile.Email != "" {
		bullets = append(bullets, fmt.Sprintf("Email %s", profile.Email))
	}
	if profile.WebsiteURL != "" {
		bullets = append(bullets, fmt.Sprintf("Visit %s", profile.WebsiteURL))
	}
	return bullets
}

func locationOr(location, fallback string) string {
	if location == "" {
		return fallback
	}
	return location
}

// firstSentence extracts the narrative's opening sentence, capped so a long
// first sentence does not overflow a slide bullet.
func firstSentence(content string) string {
	trimmed := strings.TrimSpace(content)
	if idx := strings.IndexAny(trimmed, ".!?"); idx > 0 {
		trimmed = trimmed[:idx+1]
	}
	const maxBullet = 180
	if len(trimmed) > maxBullet {
		trimmed = trimmed[:maxBullet-1] + "…"
	}
	return trimmed
}
