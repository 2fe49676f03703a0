// Copyright (C) 2026 Shop Compliance Engine Contributors
// Licensed under the GNU Affero General Public License v3.0.
// See the LICENSE.txt file for the full license text.

package compliance

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	textLenMin = 50
	textLenMax = 50000

	spamMaxWordFrequency = 0.30
)

// ValidationCategory enumerates the kinds of input rejection C8 can report.
type ValidationCategory string

const (
	CategoryLengthError    ValidationCategory = "length_error"
	CategoryForbiddenInput ValidationCategory = "forbidden_input"
	CategorySpamDetected   ValidationCategory = "spam_detected"
	CategoryFieldTooShort  ValidationCategory = "field_too_short"
)

// ValidationError is the structured rejection object returned by the
// Input Validator.
type ValidationError struct {
	Category   ValidationCategory `json:"category"`
	Message    string             `json:"message"`
	Details    map[string]any     `json:"details,omitempty"`
	UserAction string             `json:"user_action"`
}

func (v *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Category, v.Message)
}

// ToErrorRecord converts a ValidationError into the fixed error taxonomy's
// validation-kind record.
func (v *ValidationError) ToErrorRecord() *ErrorRecord {
	return &ErrorRecord{
		Kind:       ErrValidation,
		Message:    v.Message,
		Details:    v.Details,
		UserAction: v.UserAction,
	}
}

var forbiddenPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<script[^>]*>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)data:[a-z]+/[a-z0-9.+-]+;base64,`),
	regexp.MustCompile(`(?i)\bon(click|error|load|mouseover)\s*=`),
	regexp.MustCompile(`(?i)\b(union\s+select|drop\s+table|insert\s+into|--\s*$)`),
	regexp.MustCompile(`(?i)\{\{.*\}\}`),
	regexp.MustCompile(`(?i)\$\{.*\}`),
}

var wordSplitter = regexp.MustCompile(`[A-Za-z0-9']+`)

// InputValidator runs before the pipeline and rejects malformed, malicious,
// or spam input. It never calls out to any stage or provider.
type InputValidator struct {
	structValidate *validator.Validate
}

// NewInputValidator constructs an InputValidator.
func NewInputValidator() *InputValidator {
	return &InputValidator{structValidate: validator.New(validator.WithRequiredStructEnabled())}
}

// Validate runs every check in the documented order and returns the first
// failure, or nil if the input passes all of them.
func (v *InputValidator) Validate(in SubmitInput) *ValidationError {
	if err := v.checkLength(in.PolicyText); err != nil {
		return err
	}
	if err := v.checkForbiddenPatterns(in.PolicyText); err != nil {
		return err
	}
	if err := v.checkSpam(in.PolicyText); err != nil {
		return err
	}
	if err := v.checkFieldLengths(in); err != nil {
		return err
	}
	return nil
}

func (v *InputValidator) checkLength(text string) *ValidationError {
	n := len([]rune(text))
	if n < textLenMin || n > textLenMax {
		return &ValidationError{
			Category: CategoryLengthError,
			Message:  fmt.Sprintf("policy_text length %d is outside the allowed range [%d, %d]", n, textLenMin, textLenMax),
			Details:  map[string]any{"length": n, "min": textLenMin, "max": textLenMax},
			UserAction: "Submit a policy document between 50 and 50,000 characters.",
		}
	}
	return nil
}

func (v *InputValidator) checkForbiddenPatterns(text string) *ValidationError {
	for _, pat := range forbiddenPatterns {
		if pat.MatchString(text) {
			return &ValidationError{
				Category:   CategoryForbiddenInput,
				Message:    "policy_text contains a forbidden pattern",
				Details:    map[string]any{"pattern": pat.String()},
				UserAction: "Remove script tags, data URLs, and injection-like markers from the policy text.",
			}
		}
	}
	return nil
}

func (v *InputValidator) checkSpam(text string) *ValidationError {
	words := wordSplitter.FindAllString(strings.ToLower(text), -1)
	total := len(words)
	if total == 0 {
		return nil
	}
	counts := make(map[string]int, total)
	for _, w := range words {
		counts[w]++
	}
	for word, count := range counts {
		freq := float64(count) / float64(total)
		if freq > spamMaxWordFrequency {
			return &ValidationError{
				Category: CategorySpamDetected,
				Message:  fmt.Sprintf("word %q accounts for %.0f%% of policy_text, exceeding the spam threshold", word, freq*100),
				Details:  map[string]any{"word": word, "frequency": freq, "threshold": spamMaxWordFrequency},
				UserAction: "Submit a natural-language policy document rather than repeated filler text.",
			}
		}
	}
	return nil
}

func (v *InputValidator) checkFieldLengths(in SubmitInput) *ValidationError {
	if len(strings.TrimSpace(in.ShopName)) < 2 {
		return &ValidationError{
			Category:   CategoryFieldTooShort,
			Message:    "shop_name must be at least 2 characters after trimming",
			UserAction: "Provide a shop_name of at least 2 characters.",
		}
	}
	if len(strings.TrimSpace(in.ShopSpecialization)) < 2 {
		return &ValidationError{
			Category:   CategoryFieldTooShort,
			Message:    "specialization must be at least 2 characters after trimming",
			UserAction: "Provide a specialization of at least 2 characters.",
		}
	}
	return nil
}
