package draft

// Step is a state of the drafting conversation.
type Step string

const (
	StepGreeting              Step = "greeting"
	StepClientType            Step = "client_type"
	StepClientIDLookupPending Step = "client_id_lookup_pending"
	StepConfirmCompany        Step = "confirm_company"
	StepManualCompanyName     Step = "manual_company_name"
	StepManualCompanyAddress  Step = "manual_company_address"
	StepManualCompanyCity     Step = "manual_company_city"
	StepManualCompanyCounty   Step = "manual_company_county"
	StepAddProductName        Step = "add_product_name"
	StepAddProductPrice       Step = "add_product_price"
	StepAddProductQuantity    Step = "add_product_quantity"
	StepConfirmAddMore        Step = "confirm_add_more"
	StepGenerateDocument      Step = "generate_document"
	StepDone                  Step = "done"
)

var steps = []Step{
	StepGreeting,
	StepClientType,
	StepClientIDLookupPending,
	StepConfirmCompany,
	StepManualCompanyName,
	StepManualCompanyAddress,
	StepManualCompanyCity,
	StepManualCompanyCounty,
	StepAddProductName,
	StepAddProductPrice,
	StepAddProductQuantity,
	StepConfirmAddMore,
	StepGenerateDocument,
	StepDone,
}

// Steps returns every step in conversation order.
func Steps() []Step {
	return append([]Step(nil), steps...)
}

// Valid reports whether s is one of the known steps.
func (s Step) Valid() bool {
	for _, known := range steps {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition leaves s.
func (s Step) Terminal() bool {
	return s == StepDone
}

// ManualCompany reports whether s collects a company field by hand.
func (s Step) ManualCompany() bool {
	switch s {
	case StepManualCompanyName, StepManualCompanyAddress, StepManualCompanyCity, StepManualCompanyCounty:
		return true
	default:
		return false
	}
}

// ProductEntry reports whether s collects a product field.
func (s Step) ProductEntry() bool {
	switch s {
	case StepAddProductName, StepAddProductPrice, StepAddProductQuantity:
		return true
	default:
		return false
	}
}
