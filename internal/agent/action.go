// Package agent implements the action-routing core: the fixed action
// vocabulary, the safe/sensitive classifier, the human confirmation gate,
// the tool execution layer, and the orchestrator loop that drives a
// conversation turn.
package agent

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/varun-vijayanand/virtual-sales-agent/internal/domain/order"
)

// Wire names of the action vocabulary. These are the tool names exposed to
// the decision-maker; anything else is a classification error.
const (
	NameListCategories    = "list_categories"
	NameSearchProducts    = "search_products"
	NameCheckOrderStatus  = "check_order_status"
	NameRecommendProducts = "recommend_products"
	NameCreateOrder       = "create_order"
)

// ClassificationError indicates the decision-maker proposed an action name
// outside the fixed vocabulary. It is fatal to the turn.
type ClassificationError struct {
	Name string
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("unknown action %q", e.Name)
}

// Action is the closed set of operations the decision-maker may propose.
// Each variant carries its own typed payload and is dispatched by exhaustive
// type switching, never by name lookup.
type Action interface {
	// ActionName returns the wire name of the action.
	ActionName() string

	isAction()
}

// ListCategoriesAction requests the in-stock category names.
type ListCategoriesAction struct{}

func (ListCategoriesAction) ActionName() string { return NameListCategories }
func (ListCategoriesAction) isAction()          {}

// SearchProductsAction searches the in-stock catalog.
type SearchProductsAction struct {
	Query    string           `json:"query,omitempty"`
	Category string           `json:"category,omitempty"`
	MinPrice *decimal.Decimal `json:"min_price,omitempty"`
	MaxPrice *decimal.Decimal `json:"max_price,omitempty"`
}

func (SearchProductsAction) ActionName() string { return NameSearchProducts }
func (SearchProductsAction) isAction()          {}

// CheckOrderStatusAction fetches one order, or all of the customer's orders
// when OrderID is empty.
type CheckOrderStatusAction struct {
	OrderID string `json:"order_id,omitempty"`
}

func (CheckOrderStatusAction) ActionName() string { return NameCheckOrderStatus }
func (CheckOrderStatusAction) isAction()          {}

// RecommendProductsAction requests product recommendations for the customer.
type RecommendProductsAction struct{}

func (RecommendProductsAction) ActionName() string { return NameRecommendProducts }
func (RecommendProductsAction) isAction()          {}

// CreateOrderAction places an order. It is the only sensitive action in the
// vocabulary.
type CreateOrderAction struct {
	Items []order.LineRequest `json:"items"`
}

func (CreateOrderAction) ActionName() string { return NameCreateOrder }
func (CreateOrderAction) isAction()          {}

// ParseAction decodes a proposed action into its typed variant. Unknown
// names return a *ClassificationError. A nil or empty argument payload is
// treated as an empty object.
func ParseAction(name string, args json.RawMessage) (Action, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	switch name {
	case NameListCategories:
		return ListCategoriesAction{}, nil
	case NameSearchProducts:
		var a SearchProductsAction
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, fmt.Errorf("decode %s arguments: %w", name, err)
		}
		return a, nil
	case NameCheckOrderStatus:
		var a CheckOrderStatusAction
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, fmt.Errorf("decode %s arguments: %w", name, err)
		}
		return a, nil
	case NameRecommendProducts:
		return RecommendProductsAction{}, nil
	case NameCreateOrder:
		var a CreateOrderAction
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, fmt.Errorf("decode %s arguments: %w", name, err)
		}
		return a, nil
	default:
		return nil, &ClassificationError{Name: name}
	}
}

// Capability classifies an action by its side effects.
type Capability int

const (
	// Safe actions have no mutating side effects and execute freely.
	Safe Capability = iota
	// Sensitive actions mutate shared state and require confirmation.
	Sensitive
)

func (c Capability) String() string {
	switch c {
	case Safe:
		return "safe"
	case Sensitive:
		return "sensitive"
	default:
		return fmt.Sprintf("Capability(%d)", int(c))
	}
}

// Classify maps an action to its capability. It is a pure function: same
// action kind, same capability, no I/O.
func Classify(a Action) Capability {
	switch a.(type) {
	case CreateOrderAction:
		return Sensitive
	default:
		return Safe
	}
}
