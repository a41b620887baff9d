package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"sentinelpay/monitor/internal/domain"
)

// verdict is the payload the model is instructed to return. Pointer fields
// distinguish a missing key from a zero value.
type verdict struct {
	RiskScore *int      `json:"riskScore"`
	IsFraud   *bool     `json:"isFraud"`
	Reasons   *[]string `json:"reasons"`
}

// BuildPrompt renders the instruction sent to the model for one transaction.
func BuildPrompt(tx *domain.Transaction) string {
	var b strings.Builder
	b.WriteString("You are a payment fraud analyst. Assess the following card transaction.\n\n")
	fmt.Fprintf(&b, "Amount: $%.2f\n", tx.Amount)
	fmt.Fprintf(&b, "Merchant: %s\n", tx.Merchant)
	fmt.Fprintf(&b, "Location: %s\n", tx.Location)
	fmt.Fprintf(&b, "Foreign IP: %t\n", tx.IsForeignIP)
	fmt.Fprintf(&b, "Velocity (0-1 burst signal): %.2f\n\n", tx.Velocity)
	b.WriteString("Context: this customer's typical spend range is $10-$200 at everyday merchants in New York, US.\n\n")
	b.WriteString("Respond with strict JSON only, no prose, using exactly these fields:\n")
	b.WriteString(`{"riskScore": <integer 0-100>, "isFraud": <boolean>, "reasons": [<short strings>]}`)
	return b.String()
}

// parseVerdict strips optional code fences and decodes text strictly.
func parseVerdict(text string) (*verdict, error) {
	dec := json.NewDecoder(strings.NewReader(stripFences(text)))
	dec.DisallowUnknownFields()

	var v verdict
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after verdict", ErrSchema)
	}

	switch {
	case v.RiskScore == nil:
		return nil, fmt.Errorf("%w: missing riskScore", ErrSchema)
	case v.IsFraud == nil:
		return nil, fmt.Errorf("%w: missing isFraud", ErrSchema)
	case v.Reasons == nil:
		return nil, fmt.Errorf("%w: missing reasons", ErrSchema)
	case *v.RiskScore < 0 || *v.RiskScore > domain.MaxRiskScore:
		return nil, fmt.Errorf("%w: riskScore %d out of range", ErrSchema, *v.RiskScore)
	}
	return &v, nil
}

// stripFences removes a surrounding ``` or ```json fence, if present.
func stripFences(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop the info string ("json"), on its own line or inline.
	s = strings.TrimLeftFunc(s, unicode.IsLetter)
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
