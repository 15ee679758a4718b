package draft

import "strings"

// DefaultUnit and DefaultVATPercent apply to every committed product line.
const (
	DefaultUnit       = "buc"
	DefaultVATPercent = 19.0
)

// PendingProduct is a product assembled across the name, price and quantity turns.
type PendingProduct struct {
	Name     string  `json:"name,omitempty"`
	Price    float64 `json:"price,omitempty"`
	Quantity float64 `json:"quantity,omitempty"`
}

// Complete reports whether every field has been supplied.
func (p PendingProduct) Complete() bool {
	return strings.TrimSpace(p.Name) != "" && p.Price > 0 && p.Quantity > 0
}

// MissingStep returns the step that collects the first missing field.
func (p PendingProduct) MissingStep() (Step, bool) {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return StepAddProductName, true
	case p.Price <= 0:
		return StepAddProductPrice, true
	case p.Quantity <= 0:
		return StepAddProductQuantity, true
	default:
		return "", false
	}
}

// Line converts a complete pending product into a committed line.
func (p PendingProduct) Line(vatPercent float64) ProductLine {
	return ProductLine{
		Name:       strings.TrimSpace(p.Name),
		Unit:       DefaultUnit,
		Quantity:   p.Quantity,
		Price:      p.Price,
		VATPercent: vatPercent,
	}
}

// PendingCompany is a client assembled by lookup or by the manual-entry steps.
type PendingCompany struct {
	Name               string `json:"name,omitempty"`
	Address            string `json:"address,omitempty"`
	City               string `json:"city,omitempty"`
	County             string `json:"county,omitempty"`
	RegistrationNumber string `json:"registrationNumber,omitempty"`
}

// Complete reports whether the four address fields are present.
func (c PendingCompany) Complete() bool {
	_, missing := c.MissingStep()
	return !missing
}

// MissingStep returns the manual step that collects the first missing field.
func (c PendingCompany) MissingStep() (Step, bool) {
	switch {
	case strings.TrimSpace(c.Name) == "":
		return StepManualCompanyName, true
	case strings.TrimSpace(c.Address) == "":
		return StepManualCompanyAddress, true
	case strings.TrimSpace(c.City) == "":
		return StepManualCompanyCity, true
	case strings.TrimSpace(c.County) == "":
		return StepManualCompanyCounty, true
	default:
		return "", false
	}
}

// Client materializes the company as a client snapshot.
func (c PendingCompany) Client(identifier string) Client {
	return Client{
		Name:               strings.TrimSpace(c.Name),
		Address:            strings.TrimSpace(c.Address),
		City:               strings.TrimSpace(c.City),
		County:             strings.TrimSpace(c.County),
		RegistrationNumber: strings.TrimSpace(c.RegistrationNumber),
		Identifier:         identifier,
	}
}

// ProductLine is a committed document line.
type ProductLine struct {
	Name       string  `json:"name"`
	Unit       string  `json:"unit"`
	Quantity   float64 `json:"quantity"`
	Price      float64 `json:"price"`
	VATPercent float64 `json:"vatPercent"`
}
