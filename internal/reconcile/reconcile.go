// Package reconcile plans the one-time merge of guest line items into a
// signed-in user's remote collection.
//
// The remote endpoint has no native upsert, so the caller fetches the current
// remote list, plans against it here, and executes only the necessary
// mutations (fetch-then-branch).
package reconcile

import "storefront-sync/internal/model"

// Mode selects what happens when a guest item already exists remotely.
type Mode int

const (
	// ModeSum adds the guest quantity to the existing remote quantity (carts).
	ModeSum Mode = iota

	// ModeKeepExisting leaves the remote entry untouched (wishlists).
	ModeKeepExisting
)

// Action is one kind of merge mutation.
type Action int

const (
	ActionInsert    Action = iota // Key missing remotely: insert the guest item
	ActionIncrement               // Key present remotely: raise its quantity
	ActionSkip                    // Key present remotely and nothing to change
)

func (a Action) String() string {
	switch a {
	case ActionInsert:
		return "insert"
	case ActionIncrement:
		return "increment"
	default:
		return "skip"
	}
}

// CurrentItem is an item in the user's remote collection.
// Callers convert their row types to this before planning.
type CurrentItem struct {
	ProductID string // Canonical product identifier
	VariantID string // Optional variant identifier
	BackendID string // Remote row id, needed for the update call
	Quantity  int    // Current quantity
}

// GuestItem is an item waiting to be migrated.
type GuestItem struct {
	ProductID string
	VariantID string
	Quantity  int
}

// Step is one planned mutation.
type Step struct {
	Action Action

	// Sources are indexes into the guest slice handed to PlanMerge. More than
	// one index means duplicate guest entries were folded into this step.
	// Once the step succeeds every source is migrated.
	Sources []int

	ProductID string
	VariantID string

	BackendID   string // Set for ActionIncrement and ActionSkip
	OldQuantity int    // Remote quantity before the step (informational)
	NewQuantity int    // Quantity to insert, or the remote quantity after the step
}

// MergePlan is the ordered list of steps for one merge.
type MergePlan struct {
	Steps []Step
}

// IsEmpty returns true if no remote mutation is needed.
func (p *MergePlan) IsEmpty() bool {
	for _, s := range p.Steps {
		if s.Action != ActionSkip {
			return false
		}
	}
	return true
}

// Count returns the number of steps with the given action.
func (p *MergePlan) Count(a Action) int {
	n := 0
	for _, s := range p.Steps {
		if s.Action == a {
			n++
		}
	}
	return n
}

// PlanMerge computes the mutations that fold guest into current.
// Matching is by (ProductID, VariantID). Steps follow the order of guest,
// so the plan is deterministic for a given input.
//
// Algorithm:
//  1. Build a lookup map of current items by key
//  2. Fold duplicate guest keys into the first occurrence (quantities add)
//  3. For each folded guest item: missing → insert; present → increment (ModeSum) or skip
func PlanMerge(current []CurrentItem, guest []GuestItem, mode Mode) *MergePlan {
	currentByKey := make(map[model.ItemKey]CurrentItem, len(current))
	for _, item := range current {
		currentByKey[model.ItemKey{ProductID: item.ProductID, VariantID: item.VariantID}] = item
	}

	plan := &MergePlan{}
	stepByKey := make(map[model.ItemKey]int)

	for i, g := range guest {
		key := model.ItemKey{ProductID: g.ProductID, VariantID: g.VariantID}
		qty := g.Quantity
		if qty < 1 {
			qty = 1
		}

		if idx, seen := stepByKey[key]; seen {
			step := &plan.Steps[idx]
			step.Sources = append(step.Sources, i)
			if mode == ModeSum && step.Action != ActionSkip {
				step.NewQuantity += qty
			}
			continue
		}

		step := Step{
			Sources:   []int{i},
			ProductID: g.ProductID,
			VariantID: g.VariantID,
		}
		if cur, exists := currentByKey[key]; exists {
			step.BackendID = cur.BackendID
			step.OldQuantity = cur.Quantity
			step.NewQuantity = cur.Quantity
			step.Action = ActionSkip
			if mode == ModeSum {
				step.Action = ActionIncrement
				step.NewQuantity = cur.Quantity + qty
			}
		} else {
			step.Action = ActionInsert
			step.NewQuantity = qty
			if mode == ModeKeepExisting {
				step.NewQuantity = 1
			}
		}

		stepByKey[key] = len(plan.Steps)
		plan.Steps = append(plan.Steps, step)
	}

	return plan
}
