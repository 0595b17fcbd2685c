package model

import "strings"

type ResourceType string

const (
	ResourceOrders    ResourceType = "orders"
	ResourceProducts  ResourceType = "products"
	ResourceClaims    ResourceType = "claims"
	ResourceQuestions ResourceType = "questions"
)

func (r ResourceType) String() string { return string(r) }

func (r ResourceType) Valid() bool {
	switch r {
	case ResourceOrders, ResourceProducts, ResourceClaims, ResourceQuestions:
		return true
	default:
		return false
	}
}

// ParseResourceType normalizes input. Returns (value, true) if valid.
func ParseResourceType(s string) (ResourceType, bool) {
	r := ResourceType(strings.ToLower(strings.TrimSpace(s)))
	return r, r.Valid()
}

// AllResourceTypes lists every synchronized resource class, in the order the
// scheduler submits them.
func AllResourceTypes() []ResourceType {
	return []ResourceType{ResourceOrders, ResourceProducts, ResourceClaims, ResourceQuestions}
}
