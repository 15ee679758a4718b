// Package document turns a completed drafting session into an issued invoice.
package document

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/zhouzirui/z-invoice/backend/internal/model/draft"
)

var (
	ErrInvalidRequest = errors.New("invalid document request")
	ErrFinalize       = errors.New("document finalization failed")
)

// ClientInfo is the buyer block of the document.
type ClientInfo struct {
	Type               draft.ClientType `json:"type"`
	Identifier         string           `json:"identifier,omitempty"`
	Name               string           `json:"name"`
	Address            string           `json:"address"`
	City               string           `json:"city"`
	County             string           `json:"county"`
	RegistrationNumber string           `json:"registrationNumber,omitempty"`
}

// Line is one priced row of the document.
type Line struct {
	Name       string  `json:"name"`
	Unit       string  `json:"unit"`
	Quantity   float64 `json:"quantity"`
	Price      float64 `json:"price"`
	VATPercent float64 `json:"vatPercent"`
}

// CreateRequest is what the pipeline needs to issue a document.
type CreateRequest struct {
	SessionID string     `json:"sessionId"`
	Source    string     `json:"source"`
	Client    ClientInfo `json:"client"`
	Lines     []Line     `json:"lines"`
}

// Result identifies the issued document.
type Result struct {
	ID       string          `json:"id"`
	Number   string          `json:"number"`
	Subtotal decimal.Decimal `json:"subtotal"`
	VAT      decimal.Decimal `json:"vat"`
	Total    decimal.Decimal `json:"total"`
}

// Pipeline issues documents. A call either creates the whole document or
// nothing. Repeated calls for the same SessionID return the document already
// issued for it.
type Pipeline interface {
	CreateDocument(ctx context.Context, req CreateRequest) (Result, error)
}

// Totals computes net, VAT and gross amounts. Each line is rounded to two
// decimals before summing.
func Totals(lines []Line) (subtotal, vat, total decimal.Decimal) {
	hundred := decimal.NewFromInt(100)
	for _, l := range lines {
		net := decimal.NewFromFloat(l.Quantity).Mul(decimal.NewFromFloat(l.Price)).Round(2)
		tax := net.Mul(decimal.NewFromFloat(l.VATPercent)).Div(hundred).Round(2)
		subtotal = subtotal.Add(net)
		vat = vat.Add(tax)
	}
	return subtotal, vat, subtotal.Add(vat)
}

// BuildRequest maps a session onto a creation request.
func BuildRequest(session draft.Session) (CreateRequest, error) {
	if session.ClientSnapshot == nil {
		return CreateRequest{}, errors.Join(ErrInvalidRequest, errors.New("client is missing"))
	}
	if len(session.Products) == 0 {
		return CreateRequest{}, errors.Join(ErrInvalidRequest, errors.New("no products"))
	}

	client := session.ClientSnapshot
	identifier := client.Identifier
	if identifier == "" {
		identifier = session.ClientIdentifier
	}
	req := CreateRequest{
		SessionID: session.ID,
		Source:    session.Source,
		Client: ClientInfo{
			Type:               session.ClientType,
			Identifier:         identifier,
			Name:               client.Name,
			Address:            client.Address,
			City:               client.City,
			County:             client.County,
			RegistrationNumber: client.RegistrationNumber,
		},
		Lines: make([]Line, 0, len(session.Products)),
	}
	for _, p := range session.Products {
		req.Lines = append(req.Lines, Line{
			Name:       p.Name,
			Unit:       p.Unit,
			Quantity:   p.Quantity,
			Price:      p.Price,
			VATPercent: p.VATPercent,
		})
	}
	return req, nil
}
