package validator

import "testing"

type styleRequest struct {
	Style string `validate:"coachstyle"`
	Days  int    `validate:"min=7,max=120"`
}

func TestRegisteredValidationAndDescribe(t *testing.T) {
	v := New()
	if err := v.RegisterValidation("coachstyle", OneOfFold("professional", "friendly")); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := v.Struct(styleRequest{Style: "Friendly", Days: 30}); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
	if err := v.Struct(styleRequest{Days: 30}); err != nil {
		t.Fatalf("expected empty style to pass, got %v", err)
	}

	err := v.Struct(styleRequest{Style: "angry", Days: 3})
	if err == nil {
		t.Fatal("expected validation error")
	}
	fields := Describe(err)
	if fields["Style"] != "coachstyle" {
		t.Errorf("expected Style=coachstyle, got %q", fields["Style"])
	}
	if fields["Days"] != "min=7" {
		t.Errorf("expected Days=min=7, got %q", fields["Days"])
	}
}
