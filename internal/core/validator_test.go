package core

import (
	"errors"
	"log/slog"
	"os"
	"testing"

	"pathsynch/internal/types"
)

// testLogger returns a quiet logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testSignupRequest struct {
	Email        string `json:"email" validate:"required,email"`
	BusinessName string `json:"businessName" validate:"required,max=200"`
}

type testPlanOverrideRequest struct {
	Plan string `json:"plan" validate:"required,plan_tier"`
}

type testContactRequest struct {
	Phone string `json:"phone" validate:"phone_digits"`
}

func TestValidationResultIsValid(t *testing.T) {
	if !(ValidationResult{}).IsValid() {
		t.Error("empty result must be valid")
	}
	r := ValidationResult{Errors: []ValidationError{{Field: "email", Code: "validation_invalid_email"}}}
	if r.IsValid() {
		t.Error("result with errors must be invalid")
	}
	if !(ValidationResult{Warnings: []string{"heads up"}}).IsValid() {
		t.Error("warnings alone must not invalidate")
	}
}

func TestValidateStructSuccess(t *testing.T) {
	v := NewValidator(testLogger())

	req := testSignupRequest{Email: "owner@sunrise.test", BusinessName: "Sunrise Bakery"}
	if err := v.ValidateStruct(req); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}

func TestValidateStructFailureReturnsAppError(t *testing.T) {
	v := NewValidator(testLogger())

	req := testSignupRequest{Email: "not-an-email", BusinessName: ""}
	err := v.ValidateStruct(req)
	if err == nil {
		t.Fatal("expected error")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.HTTPStatus() != 400 {
		t.Errorf("status = %d, want 400", appErr.HTTPStatus())
	}

	ve, ok := appErr.Details["validation_errors"]
	if !ok {
		t.Fatal("details must carry validation_errors")
	}
	errs := ve.([]ValidationError)
	if len(errs) != 2 {
		t.Fatalf("got %d validation errors, want 2: %+v", len(errs), errs)
	}

	// Fields are reported by json name.
	fields := map[string]string{}
	for _, e := range errs {
		fields[e.Field] = e.Code
	}
	if fields["email"] != string(types.ErrCodeValidationInvalidEmail) {
		t.Errorf("email code = %q", fields["email"])
	}
	if fields["businessName"] != string(types.ErrCodeValidationMissingField) {
		t.Errorf("businessName code = %q", fields["businessName"])
	}
}

func TestValidateStructWithWarningsInvalid(t *testing.T) {
	v := NewValidator(testLogger())

	result := v.ValidateStructWithWarnings(testSignupRequest{})
	if result.IsValid() {
		t.Error("expected invalid result")
	}
	if len(result.Errors) != 2 {
		t.Errorf("got %d errors, want 2", len(result.Errors))
	}
}

func TestPlanTierTag(t *testing.T) {
	v := NewValidator(testLogger())

	for _, plan := range []string{"starter", "growth", "scale", "enterprise"} {
		if err := v.ValidateStruct(testPlanOverrideRequest{Plan: plan}); err != nil {
			t.Errorf("plan %q must validate: %v", plan, err)
		}
	}

	err := v.ValidateStruct(testPlanOverrideRequest{Plan: "platinum"})
	if err == nil {
		t.Fatal("unknown plan must fail")
	}
	var appErr *types.AppError
	if errors.As(err, &appErr) && appErr.Code != types.ErrCodeValidationInvalidPlan {
		t.Errorf("code = %q, want validation_invalid_plan", appErr.Code)
	}
}

func TestPhoneDigitsTag(t *testing.T) {
	v := NewValidator(testLogger())

	cases := []struct {
		phone string
		valid bool
	}{
		{"", true}, // optional unless combined with required
		{"(555) 123-4567", true},
		{"+1 555 123 4567", true},
		{"555-1234", false},
		{"not a phone", false},
	}

	for _, tc := range cases {
		err := v.ValidateStruct(testContactRequest{Phone: tc.phone})
		if tc.valid && err != nil {
			t.Errorf("phone %q must validate: %v", tc.phone, err)
		}
		if !tc.valid && err == nil {
			t.Errorf("phone %q must fail", tc.phone)
		}
	}
}

func TestValidateStructNonStructInput(t *testing.T) {
	v := NewValidator(testLogger())

	if err := v.ValidateStruct(42); err == nil {
		t.Error("non-struct input must fail")
	}
}
