package reconcile

import (
	"testing"
)

func TestPlanMerge_EmptyRemote(t *testing.T) {
	// Empty remote, guest items → all inserts
	guest := []GuestItem{
		{ProductID: "p1", VariantID: "v1", Quantity: 2},
		{ProductID: "p2", VariantID: "v2", Quantity: 1},
	}

	plan := PlanMerge(nil, guest, ModeSum)

	if got := plan.Count(ActionInsert); got != 2 {
		t.Fatalf("inserts = %d, want 2", got)
	}
	if plan.Steps[0].ProductID != "p1" || plan.Steps[0].NewQuantity != 2 {
		t.Errorf("step 0 = %+v, want p1 qty 2", plan.Steps[0])
	}
	if plan.Steps[1].ProductID != "p2" || plan.Steps[1].NewQuantity != 1 {
		t.Errorf("step 1 = %+v, want p2 qty 1", plan.Steps[1])
	}
}

func TestPlanMerge_EmptyGuest(t *testing.T) {
	current := []CurrentItem{{ProductID: "p1", BackendID: "row-1", Quantity: 3}}

	plan := PlanMerge(current, nil, ModeSum)

	if !plan.IsEmpty() {
		t.Errorf("plan should be empty, got %d steps", len(plan.Steps))
	}
}

func TestPlanMerge_CartSumsExisting(t *testing.T) {
	current := []CurrentItem{
		{ProductID: "p1", VariantID: "v1", BackendID: "row-1", Quantity: 3},
	}
	guest := []GuestItem{{ProductID: "p1", VariantID: "v1", Quantity: 2}}

	plan := PlanMerge(current, guest, ModeSum)

	if len(plan.Steps) != 1 {
		t.Fatalf("steps = %d, want 1", len(plan.Steps))
	}
	step := plan.Steps[0]
	if step.Action != ActionIncrement {
		t.Errorf("Action = %v, want increment", step.Action)
	}
	if step.BackendID != "row-1" {
		t.Errorf("BackendID = %q, want row-1", step.BackendID)
	}
	if step.OldQuantity != 3 || step.NewQuantity != 5 {
		t.Errorf("quantity %d → %d, want 3 → 5", step.OldQuantity, step.NewQuantity)
	}
}

func TestPlanMerge_WishlistKeepsExisting(t *testing.T) {
	current := []CurrentItem{{ProductID: "p1", BackendID: "row-1", Quantity: 1}}
	guest := []GuestItem{
		{ProductID: "p1", Quantity: 1},
		{ProductID: "p2", Quantity: 4},
	}

	plan := PlanMerge(current, guest, ModeKeepExisting)

	if plan.Steps[0].Action != ActionSkip {
		t.Errorf("existing wishlist entry: Action = %v, want skip", plan.Steps[0].Action)
	}
	if plan.Steps[1].Action != ActionInsert || plan.Steps[1].NewQuantity != 1 {
		t.Errorf("new wishlist entry = %+v, want insert qty 1", plan.Steps[1])
	}
	if plan.IsEmpty() {
		t.Error("plan with an insert must not be empty")
	}
}

func TestPlanMerge_VariantDistinguishesItems(t *testing.T) {
	current := []CurrentItem{{ProductID: "p1", VariantID: "small", BackendID: "row-1", Quantity: 1}}
	guest := []GuestItem{{ProductID: "p1", VariantID: "large", Quantity: 1}}

	plan := PlanMerge(current, guest, ModeSum)

	if plan.Steps[0].Action != ActionInsert {
		t.Errorf("different variant: Action = %v, want insert", plan.Steps[0].Action)
	}
}

func TestPlanMerge_FoldsDuplicateGuestKeys(t *testing.T) {
	guest := []GuestItem{
		{ProductID: "p1", VariantID: "v1", Quantity: 1},
		{ProductID: "p2", Quantity: 1},
		{ProductID: "p1", VariantID: "v1", Quantity: 2},
	}

	plan := PlanMerge(nil, guest, ModeSum)

	if len(plan.Steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(plan.Steps))
	}
	if plan.Steps[0].NewQuantity != 3 {
		t.Errorf("folded quantity = %d, want 3", plan.Steps[0].NewQuantity)
	}
	if len(plan.Steps[0].Sources) != 2 || plan.Steps[0].Sources[1] != 2 {
		t.Errorf("Sources = %v, want [0 2]", plan.Steps[0].Sources)
	}
}

func TestPlanMerge_QuantityFloor(t *testing.T) {
	plan := PlanMerge(nil, []GuestItem{{ProductID: "p1", Quantity: 0}}, ModeSum)

	if plan.Steps[0].NewQuantity != 1 {
		t.Errorf("NewQuantity = %d, want 1", plan.Steps[0].NewQuantity)
	}
}

// Re-planning after the first merge landed must not add quantities again
// when the migrated guest items were removed from the guest list.
func TestPlanMerge_ReplanAfterMigrationIsEmpty(t *testing.T) {
	guest := []GuestItem{{ProductID: "p1", VariantID: "v1", Quantity: 2}}
	first := PlanMerge(nil, guest, ModeSum)
	if first.Count(ActionInsert) != 1 {
		t.Fatal("first plan should insert")
	}

	current := []CurrentItem{{ProductID: "p1", VariantID: "v1", BackendID: "row-1", Quantity: 2}}
	second := PlanMerge(current, nil, ModeSum)
	if !second.IsEmpty() {
		t.Errorf("second plan should be empty, got %+v", second.Steps)
	}
}

// A product id containing the separator must not match a different
// product and variant pair.
func TestPlanMerge_KeysWithSeparatorStayDistinct(t *testing.T) {
	current := []CurrentItem{
		{ProductID: "a:b", BackendID: "row-1", Quantity: 5},
	}
	guest := []GuestItem{
		{ProductID: "a", VariantID: "b", Quantity: 1},
		{ProductID: "a:b", Quantity: 2},
	}

	plan := PlanMerge(current, guest, ModeSum)

	if len(plan.Steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(plan.Steps))
	}
	if s := plan.Steps[0]; s.Action != ActionInsert || s.ProductID != "a" || s.VariantID != "b" || s.NewQuantity != 1 {
		t.Errorf("step 0 = %+v, want insert a/b qty 1", s)
	}
	if s := plan.Steps[1]; s.Action != ActionIncrement || s.BackendID != "row-1" || s.NewQuantity != 7 {
		t.Errorf("step 1 = %+v, want increment row-1 to 7", s)
	}
}

func TestAction_String(t *testing.T) {
	if ActionInsert.String() != "insert" || ActionIncrement.String() != "increment" || ActionSkip.String() != "skip" {
		t.Error("unexpected action names")
	}
}
