package billing

import (
	"testing"

	"pathsynch/internal/types"
)

func TestNewStaticPlanRegistry(t *testing.T) {
	reg := NewStaticPlanRegistry()
	if reg == nil {
		t.Fatal("NewStaticPlanRegistry returned nil")
	}
}

func TestLimits_StarterTier(t *testing.T) {
	reg := NewStaticPlanRegistry()
	limits := reg.Limits(types.PlanStarter)

	assertLimits(t, "Starter", limits, types.PlanLimits{
		PitchesPerMonth:         10,
		BulkUploadsPerMonth:     1,
		BulkUploadRows:          5,
		NarrativesPerMonth:      2,
		AIRegenerationsPerMonth: 2,
		MarketReportsPerMonth:   3,
		MonthlyPriceCents:       0,
	})
}

func TestLimits_GrowthTier(t *testing.T) {
	reg := NewStaticPlanRegistry()
	limits := reg.Limits(types.PlanGrowth)

	assertLimits(t, "Growth", limits, types.PlanLimits{
		PitchesPerMonth:         50,
		BulkUploadsPerMonth:     5,
		BulkUploadRows:          50,
		NarrativesPerMonth:      10,
		AIRegenerationsPerMonth: 10,
		MarketReportsPerMonth:   15,
		MonthlyPriceCents:       4900,
	})
}

func TestLimits_ScaleTier(t *testing.T) {
	reg := NewStaticPlanRegistry()
	limits := reg.Limits(types.PlanScale)

	assertLimits(t, "Scale", limits, types.PlanLimits{
		PitchesPerMonth:         200,
		BulkUploadsPerMonth:     20,
		BulkUploadRows:          250,
		NarrativesPerMonth:      50,
		AIRegenerationsPerMonth: 50,
		MarketReportsPerMonth:   60,
		MonthlyPriceCents:       14900,
	})
}

func TestLimits_EnterpriseTier(t *testing.T) {
	reg := NewStaticPlanRegistry()
	limits := reg.Limits(types.PlanEnterprise)

	assertLimits(t, "Enterprise", limits, types.PlanLimits{
		PitchesPerMonth:         Unlimited,
		BulkUploadsPerMonth:     Unlimited,
		BulkUploadRows:          Unlimited,
		NarrativesPerMonth:      Unlimited,
		AIRegenerationsPerMonth: Unlimited,
		MarketReportsPerMonth:   Unlimited,
		MonthlyPriceCents:       49900,
	})
}

func TestLimits_UnknownTierFallsBackToStarter(t *testing.T) {
	reg := NewStaticPlanRegistry()

	got := reg.Limits(types.PlanTier("nonexistent"))
	want := reg.Limits(types.PlanStarter)
	assertLimits(t, "Unknown (fallback to Starter)", got, want)
}

func TestLimits_EmptyTierFallsBackToStarter(t *testing.T) {
	reg := NewStaticPlanRegistry()

	got := reg.Limits(types.PlanTier(""))
	want := reg.Limits(types.PlanStarter)
	assertLimits(t, "Empty (fallback to Starter)", got, want)
}

func TestHasFeature_GrantsAreCumulative(t *testing.T) {
	reg := NewStaticPlanRegistry()

	// Every tier keeps what the tiers below it grant.
	for _, tier := range types.PlanOrder {
		if !reg.HasFeature(tier, types.FeaturePitchGeneration) {
			t.Errorf("%s: expected pitch_generation to be granted", tier)
		}
		if !reg.HasFeature(tier, types.FeatureBulkUpload) {
			t.Errorf("%s: expected bulk_upload to be granted", tier)
		}
	}

	if reg.HasFeature(types.PlanStarter, types.FeatureNarrativeAI) {
		t.Error("Starter: narrative_ai should not be granted")
	}
	if !reg.HasFeature(types.PlanGrowth, types.FeatureNarrativeAI) {
		t.Error("Growth: narrative_ai should be granted")
	}
	if reg.HasFeature(types.PlanGrowth, types.FeatureSlideDeckExport) {
		t.Error("Growth: slide_deck_export should not be granted")
	}
	if !reg.HasFeature(types.PlanScale, types.FeatureSlideDeckExport) {
		t.Error("Scale: slide_deck_export should be granted")
	}
	if reg.HasFeature(types.PlanScale, types.FeaturePriorityQueue) {
		t.Error("Scale: priority_queue should not be granted")
	}
	if !reg.HasFeature(types.PlanEnterprise, types.FeaturePriorityQueue) {
		t.Error("Enterprise: priority_queue should be granted")
	}
}

func TestHasFeature_UnknownTierUsesStarterGrants(t *testing.T) {
	reg := NewStaticPlanRegistry()

	if !reg.HasFeature(types.PlanTier("nonexistent"), types.FeaturePitchGeneration) {
		t.Error("unknown tier should fall back to starter grants")
	}
	if reg.HasFeature(types.PlanTier("nonexistent"), types.FeatureNarrativeAI) {
		t.Error("unknown tier should not inherit paid-tier grants")
	}
}

func TestIsWithinLimits(t *testing.T) {
	reg := NewStaticPlanRegistry()

	if !reg.IsWithinLimits(types.PlanStarter, types.UsagePitches, 9) {
		t.Error("Starter at 9/10 pitches should be within limits")
	}
	if reg.IsWithinLimits(types.PlanStarter, types.UsagePitches, 10) {
		t.Error("Starter at 10/10 pitches should not be within limits")
	}
	if !reg.IsWithinLimits(types.PlanEnterprise, types.UsagePitches, 1_000_000) {
		t.Error("Enterprise pitches are unlimited")
	}
	if reg.IsWithinLimits(types.PlanGrowth, types.UsageType("apiCalls"), 0) {
		t.Error("unknown usage type must never be within limits")
	}
}

func TestFindPlanWithLimit(t *testing.T) {
	reg := NewStaticPlanRegistry()

	cases := []struct {
		usage     types.UsageType
		requested int
		want      types.PlanTier
	}{
		{types.UsagePitches, 1, types.PlanStarter},
		{types.UsagePitches, 10, types.PlanStarter},
		{types.UsagePitches, 11, types.PlanGrowth},
		{types.UsagePitches, 51, types.PlanScale},
		{types.UsagePitches, 201, types.PlanEnterprise},
		{types.UsageBulkUploads, 2, types.PlanGrowth},
		{types.UsageMarketReports, 61, types.PlanEnterprise},
	}

	for _, tc := range cases {
		if got := reg.FindPlanWithLimit(tc.usage, tc.requested); got != tc.want {
			t.Errorf("FindPlanWithLimit(%s, %d) = %s, want %s", tc.usage, tc.requested, got, tc.want)
		}
	}
}

func TestFindPlanWithLimit_UnknownTypeDefaultsToEnterprise(t *testing.T) {
	reg := NewStaticPlanRegistry()

	if got := reg.FindPlanWithLimit(types.UsageType("apiCalls"), 1); got != types.PlanEnterprise {
		t.Errorf("FindPlanWithLimit(apiCalls, 1) = %s, want enterprise", got)
	}
}

func TestFindPlanWithFeature(t *testing.T) {
	reg := NewStaticPlanRegistry()

	cases := []struct {
		feature types.Feature
		want    types.PlanTier
	}{
		{types.FeaturePitchGeneration, types.PlanStarter},
		{types.FeatureNarrativeAI, types.PlanGrowth},
		{types.FeatureSlideDeckExport, types.PlanScale},
		{types.FeaturePriorityQueue, types.PlanEnterprise},
		{types.Feature("nonexistent"), types.PlanEnterprise},
	}

	for _, tc := range cases {
		if got := reg.FindPlanWithFeature(tc.feature); got != tc.want {
			t.Errorf("FindPlanWithFeature(%s) = %s, want %s", tc.feature, got, tc.want)
		}
	}
}

func TestTier_NormalizesNames(t *testing.T) {
	reg := NewStaticPlanRegistry()

	if got := reg.Tier("scale"); got != types.PlanScale {
		t.Errorf("Tier(scale) = %s, want scale", got)
	}
	if got := reg.Tier("premium"); got != types.PlanStarter {
		t.Errorf("Tier(premium) = %s, want starter", got)
	}
	if got := reg.Tier(""); got != types.PlanStarter {
		t.Errorf("Tier(\"\") = %s, want starter", got)
	}
}

func TestPlanRegistryInterface(t *testing.T) {
	// Compile-time check that staticPlanRegistry satisfies PlanRegistry.
	var _ PlanRegistry = NewStaticPlanRegistry()
}

func TestRegistry_IndependentInstances(t *testing.T) {
	reg1 := NewStaticPlanRegistry()
	reg2 := NewStaticPlanRegistry()

	l1 := reg1.Limits(types.PlanScale)
	l2 := reg2.Limits(types.PlanScale)

	if l1 != l2 {
		t.Errorf("Two independent registries returned different Scale limits: %+v vs %+v", l1, l2)
	}
}

// assertLimits compares two PlanLimits values and reports field-level
// mismatches.
func assertLimits(t *testing.T, tier string, got, want types.PlanLimits) {
	t.Helper()

	if got.PitchesPerMonth != want.PitchesPerMonth {
		t.Errorf("%s: PitchesPerMonth = %d, want %d", tier, got.PitchesPerMonth, want.PitchesPerMonth)
	}
	if got.BulkUploadsPerMonth != want.BulkUploadsPerMonth {
		t.Errorf("%s: BulkUploadsPerMonth = %d, want %d", tier, got.BulkUploadsPerMonth, want.BulkUploadsPerMonth)
	}
	if got.BulkUploadRows != want.BulkUploadRows {
		t.Errorf("%s: BulkUploadRows = %d, want %d", tier, got.BulkUploadRows, want.BulkUploadRows)
	}
	if got.NarrativesPerMonth != want.NarrativesPerMonth {
		t.Errorf("%s: NarrativesPerMonth = %d, want %d", tier, got.NarrativesPerMonth, want.NarrativesPerMonth)
	}
	if got.AIRegenerationsPerMonth != want.AIRegenerationsPerMonth {
		t.Errorf("%s: AIRegenerationsPerMonth = %d, want %d", tier, got.AIRegenerationsPerMonth, want.AIRegenerationsPerMonth)
	}
	if got.MarketReportsPerMonth != want.MarketReportsPerMonth {
		t.Errorf("%s: MarketReportsPerMonth = %d, want %d", tier, got.MarketReportsPerMonth, want.MarketReportsPerMonth)
	}
	if got.MonthlyPriceCents != want.MonthlyPriceCents {
		t.Errorf("%s: MonthlyPriceCents = %d, want %d", tier, got.MonthlyPriceCents, want.MonthlyPriceCents)
	}
}
