package engine

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/marketgate/mp-gateway/internal/model"
	"github.com/marketgate/mp-gateway/internal/util"
)

// Remote record shapes, reduced to the identifying and projected fields.
// Everything else stays in the raw payload untouched.

type remoteOrder struct {
	ID          string      `json:"id"`
	Status      string      `json:"status"`
	OrderNumber string      `json:"order_number"`
	TotalAmount json.Number `json:"total_amount"`
}

type remoteProduct struct {
	ID     string      `json:"id"`
	Status string      `json:"status"`
	Name   string      `json:"name"`
	Price  json.Number `json:"price"`
}

type remoteClaim struct {
	ID           string      `json:"id"`
	Status       string      `json:"status"`
	Reason       string      `json:"reason"`
	RefundAmount json.Number `json:"refund_amount"`
}

type remoteQuestion struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Subject string `json:"subject"`
}

// normalizeRecord transforms one raw remote record into the local entity
// shape. An error marks the record malformed; the caller skips and counts it
// without failing the page.
func normalizeRecord(conn *model.Connection, resource model.ResourceType, raw json.RawMessage) (*model.Entity, error) {
	e := &model.Entity{
		ID:           util.NewID(),
		ConnectionID: conn.ID,
		Marketplace:  conn.Marketplace,
		ResourceType: resource,
		Raw:          raw,
		RawHash:      util.BodyHash(raw),
	}

	switch resource {
	case model.ResourceOrders:
		var rec remoteOrder
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode order: %w", err)
		}
		e.RemoteID, e.Status, e.Title = rec.ID, rec.Status, rec.OrderNumber
		e.Amount = minorUnits(rec.TotalAmount)

	case model.ResourceProducts:
		var rec remoteProduct
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode product: %w", err)
		}
		e.RemoteID, e.Status, e.Title = rec.ID, rec.Status, rec.Name
		e.Amount = minorUnits(rec.Price)

	case model.ResourceClaims:
		var rec remoteClaim
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode claim: %w", err)
		}
		e.RemoteID, e.Status, e.Title = rec.ID, rec.Status, rec.Reason
		e.Amount = minorUnits(rec.RefundAmount)

	case model.ResourceQuestions:
		var rec remoteQuestion
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode question: %w", err)
		}
		e.RemoteID, e.Status, e.Title = rec.ID, rec.Status, rec.Subject

	default:
		return nil, fmt.Errorf("unknown resource type %q", resource)
	}

	if e.RemoteID == "" {
		return nil, fmt.Errorf("%s record missing id", resource)
	}
	return e, nil
}

func minorUnits(n json.Number) int64 {
	if n == "" {
		return 0
	}
	f, err := n.Float64()
	if err != nil {
		return 0
	}
	return int64(math.Round(f * 100))
}
