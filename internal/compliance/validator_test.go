// Copyright (C) 2026 Shop Compliance Engine Contributors
// Licensed under the GNU Affero General Public License v3.0.
// See the LICENSE.txt file for the full license text.

package compliance

import (
	"strings"
	"testing"
)

func validInput() SubmitInput {
	return SubmitInput{
		ShopName:           "Acme Shop",
		ShopSpecialization: "Electronics",
		PolicyType:         "returns",
		PolicyText:         strings.Repeat("Returns are accepted within thirty days of purchase with a valid receipt. ", 2),
	}
}

func TestInputValidator_Valid(t *testing.T) {
	v := NewInputValidator()
	if err := v.Validate(validInput()); err != nil {
		t.Fatalf("expected valid input to pass, got %v", err)
	}
}

func TestInputValidator_TooShort(t *testing.T) {
	v := NewInputValidator()
	in := validInput()
	in.PolicyText = "too short"
	err := v.Validate(in)
	if err == nil || err.Category != CategoryLengthError {
		t.Fatalf("expected length_error, got %v", err)
	}
}

func TestInputValidator_TooLong(t *testing.T) {
	v := NewInputValidator()
	in := validInput()
	in.PolicyText = strings.Repeat("a", textLenMax+1)
	err := v.Validate(in)
	if err == nil || err.Category != CategoryLengthError {
		t.Fatalf("expected length_error, got %v", err)
	}
}

func TestInputValidator_ForbiddenScriptTag(t *testing.T) {
	v := NewInputValidator()
	in := validInput()
	in.PolicyText = strings.Repeat("a", 60) + "<script>alert(1)</script>"
	err := v.Validate(in)
	if err == nil || err.Category != CategoryForbiddenInput {
		t.Fatalf("expected forbidden_input, got %v", err)
	}
}

func TestInputValidator_ForbiddenDataURL(t *testing.T) {
	v := NewInputValidator()
	in := validInput()
	in.PolicyText = strings.Repeat("a", 60) + " data:text/html;base64,PHNjcmlwdD4="
	err := v.Validate(in)
	if err == nil || err.Category != CategoryForbiddenInput {
		t.Fatalf("expected forbidden_input, got %v", err)
	}
}

func TestInputValidator_Spam(t *testing.T) {
	v := NewInputValidator()
	in := validInput()
	in.PolicyText = strings.Repeat("free free free free free free free free free free ", 3)
	err := v.Validate(in)
	if err == nil || err.Category != CategorySpamDetected {
		t.Fatalf("expected spam_detected, got %v", err)
	}
}

func TestInputValidator_ShopNameTooShort(t *testing.T) {
	v := NewInputValidator()
	in := validInput()
	in.ShopName = "A"
	err := v.Validate(in)
	if err == nil || err.Category != CategoryFieldTooShort {
		t.Fatalf("expected field_too_short, got %v", err)
	}
}

func TestInputValidator_SpecializationTooShort(t *testing.T) {
	v := NewInputValidator()
	in := validInput()
	in.ShopSpecialization = " "
	err := v.Validate(in)
	if err == nil || err.Category != CategoryFieldTooShort {
		t.Fatalf("expected field_too_short, got %v", err)
	}
}
