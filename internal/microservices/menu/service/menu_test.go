package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"mini-pos/internal/common/bus/bustest"
	"mini-pos/internal/common/logger"
	"mini-pos/internal/domain"
	"mini-pos/internal/microservices/menu/repository"
)

type deduction struct {
	menuID   string
	menuName string
	qty      int
	price    float64
	released bool
}

// memMenuRepo mirrors the all-or-nothing deduction and the per-order
// ledger of the SQL repository.
type memMenuRepo struct {
	mu         sync.Mutex
	items      map[string]*domain.MenuItem
	deductions map[string][]deduction
}

func newMemMenuRepo() *memMenuRepo {
	return &memMenuRepo{
		items:      map[string]*domain.MenuItem{},
		deductions: map[string][]deduction{},
	}
}

func (r *memMenuRepo) CreateMenuItem(ctx context.Context, m domain.MenuItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := m
	r.items[m.ID] = &cp
	return nil
}

func (r *memMenuRepo) GetMenuItem(ctx context.Context, id string) (domain.MenuItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.items[id]
	if !ok {
		return domain.MenuItem{}, repository.ErrNotFound
	}
	return *m, nil
}

func (r *memMenuRepo) ListMenuItems(ctx context.Context) ([]domain.MenuItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.MenuItem, 0, len(r.items))
	for _, m := range r.items {
		out = append(out, *m)
	}
	return out, nil
}

func (r *memMenuRepo) UpdateMenuItem(ctx context.Context, id string, req domain.UpsertMenuItemRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.items[id]
	if !ok {
		return repository.ErrNotFound
	}
	m.Name, m.Price, m.Category = req.Name, req.Price, req.Category
	m.TotalStock, m.RemainingStock = req.TotalStock, req.RemainingStock
	return nil
}

func (r *memMenuRepo) DeleteMenuItem(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *memMenuRepo) DeductForOrder(ctx context.Context, orderID string, items []domain.OrderItem) ([]domain.OrderItem, float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Validate every line before touching stock.
	for _, it := range items {
		m, ok := r.items[it.MenuID]
		if !ok {
			return nil, 0, fmt.Errorf("%w: %s", repository.ErrNotFound, it.MenuID)
		}
		if m.RemainingStock < it.Quantity {
			return nil, 0, fmt.Errorf("%w: %s (requested: %d, available: %d)",
				repository.ErrOutOfStock, m.Name, it.Quantity, m.RemainingStock)
		}
	}

	enriched := make([]domain.OrderItem, 0, len(items))
	var total float64
	var recs []deduction
	for _, it := range items {
		m := r.items[it.MenuID]
		m.RemainingStock -= it.Quantity
		lt := m.Price * float64(it.Quantity)
		total += lt
		p := m.Price
		enriched = append(enriched, domain.OrderItem{
			MenuID: it.MenuID, Quantity: it.Quantity, MenuName: m.Name, Price: &p, LineTotal: &lt,
		})
		recs = append(recs, deduction{menuID: it.MenuID, menuName: m.Name, qty: it.Quantity, price: m.Price})
	}
	r.deductions[orderID] = recs
	return enriched, total, nil
}

func (r *memMenuRepo) RecordedDeduction(ctx context.Context, orderID string) ([]domain.OrderItem, float64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var items []domain.OrderItem
	var total float64
	for _, d := range r.deductions[orderID] {
		if d.released {
			continue
		}
		p := d.price
		lt := d.price * float64(d.qty)
		total += lt
		items = append(items, domain.OrderItem{
			MenuID: d.menuID, Quantity: d.qty, MenuName: d.menuName, Price: &p, LineTotal: &lt,
		})
	}
	return items, total, len(items) > 0, nil
}

func (r *memMenuRepo) RestoreForOrder(ctx context.Context, orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	recs := r.deductions[orderID]
	for i := range recs {
		if recs[i].released {
			continue
		}
		if m, ok := r.items[recs[i].menuID]; ok {
			m.RemainingStock += recs[i].qty
		}
		recs[i].released = true
	}
	return nil
}

type memDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemDedup() *memDedup { return &memDedup{seen: map[string]bool{}} }

func (d *memDedup) Seen(ctx context.Context, orderID, event string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen[orderID+":"+event]
}

func (d *memDedup) MarkProcessed(ctx context.Context, orderID, event string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[orderID+":"+event] = true
}

func newTestMenuService() (*MenuService, *memMenuRepo, *bustest.Bus) {
	repo := newMemMenuRepo()
	b := bustest.New()
	svc := NewMenuService(repo, b, newMemDedup(), logger.New("menu-test"))
	return svc, repo, b
}

func seedMenu(t *testing.T, repo *memMenuRepo) {
	t.Helper()
	ctx := context.Background()
	_ = repo.CreateMenuItem(ctx, domain.MenuItem{ID: "pizza", Name: "Pizza", Price: 10, TotalStock: 100, RemainingStock: 100})
	_ = repo.CreateMenuItem(ctx, domain.MenuItem{ID: "cola", Name: "Cold drink", Price: 3, TotalStock: 100, RemainingStock: 100})
	_ = repo.CreateMenuItem(ctx, domain.MenuItem{ID: "pasta", Name: "Pasta", Price: 8, TotalStock: 0, RemainingStock: 0})
}

func orderCreated(t *testing.T, orderID string, items ...domain.OrderItem) []byte {
	t.Helper()
	b, err := json.Marshal(domain.OrderCreatedEvent{OrderID: orderID, TableID: "t1", Items: items})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestOrderCreatedEnriches(t *testing.T) {
	svc, repo, b := newTestMenuService()
	ctx := context.Background()
	seedMenu(t, repo)

	var got domain.OrderEnrichedEvent
	b.Subscribe("observer", []string{domain.EventOrderEnriched}, func(ctx context.Context, body []byte, key string) error {
		return json.Unmarshal(body, &got)
	})

	body := orderCreated(t, "o1",
		domain.OrderItem{MenuID: "pizza", Quantity: 2},
		domain.OrderItem{MenuID: "cola", Quantity: 3},
	)
	if err := svc.HandleEvent(ctx, body, domain.EventOrderCreated); err != nil {
		t.Fatal(err)
	}

	if got.OrderID != "o1" || got.GrandTotal != 29 {
		t.Errorf("enriched = %+v, want grand total 29", got)
	}
	if len(got.Items) != 2 || got.Items[0].MenuName != "Pizza" || *got.Items[0].LineTotal != 20 {
		t.Errorf("items = %+v", got.Items)
	}

	pizza, _ := repo.GetMenuItem(ctx, "pizza")
	cola, _ := repo.GetMenuItem(ctx, "cola")
	if pizza.RemainingStock != 98 || cola.RemainingStock != 97 {
		t.Errorf("stock = %d/%d, want 98/97", pizza.RemainingStock, cola.RemainingStock)
	}
}

func TestOrderCreatedDuplicateLinesCollapse(t *testing.T) {
	svc, repo, b := newTestMenuService()
	ctx := context.Background()
	seedMenu(t, repo)

	var got domain.OrderEnrichedEvent
	b.Subscribe("observer", []string{domain.EventOrderEnriched}, func(ctx context.Context, body []byte, key string) error {
		return json.Unmarshal(body, &got)
	})

	// Two lines for the same item: deducted once, as one merged line.
	body := orderCreated(t, "o1",
		domain.OrderItem{MenuID: "pizza", Quantity: 2},
		domain.OrderItem{MenuID: "pizza", Quantity: 3},
	)
	if err := svc.HandleEvent(ctx, body, domain.EventOrderCreated); err != nil {
		t.Fatal(err)
	}

	if got.GrandTotal != 50 {
		t.Errorf("grand total = %v, want 50", got.GrandTotal)
	}
	if len(got.Items) != 1 || got.Items[0].Quantity != 5 {
		t.Errorf("items = %+v, want one merged line of 5", got.Items)
	}
	pizza, _ := repo.GetMenuItem(ctx, "pizza")
	if pizza.RemainingStock != 95 {
		t.Errorf("stock = %d, want 95", pizza.RemainingStock)
	}

	// The ledger must carry the whole deduction, so a replayed
	// enrichment has the same total and a restore returns everything.
	_, total, found, err := repo.RecordedDeduction(ctx, "o1")
	if err != nil || !found {
		t.Fatalf("ledger lookup: found=%v err=%v", found, err)
	}
	if total != 50 {
		t.Errorf("recorded total = %v, want 50", total)
	}

	fail, _ := json.Marshal(domain.TableOccupyFailedEvent{OrderID: "o1", TableID: "t1", Reason: "Table already occupied"})
	if err := svc.HandleEvent(ctx, fail, domain.EventTableOccupyFailed); err != nil {
		t.Fatal(err)
	}
	pizza, _ = repo.GetMenuItem(ctx, "pizza")
	if pizza.RemainingStock != 100 {
		t.Errorf("stock = %d after restore, want 100", pizza.RemainingStock)
	}
}

func TestOrderCreatedOutOfStock(t *testing.T) {
	svc, repo, b := newTestMenuService()
	ctx := context.Background()
	seedMenu(t, repo)

	var failed domain.OrderFailedEvent
	b.Subscribe("observer", []string{domain.EventOrderFailed}, func(ctx context.Context, body []byte, key string) error {
		return json.Unmarshal(body, &failed)
	})

	// One line is fine, the other is not: nothing may be deducted.
	body := orderCreated(t, "o1",
		domain.OrderItem{MenuID: "pizza", Quantity: 1},
		domain.OrderItem{MenuID: "pasta", Quantity: 1},
	)
	if err := svc.HandleEvent(ctx, body, domain.EventOrderCreated); err != nil {
		t.Fatal(err)
	}

	if failed.OrderID != "o1" || failed.Reason != domain.ReasonOutOfStock {
		t.Errorf("failed = %+v, want OUT_OF_STOCK", failed)
	}
	if b.Count(domain.EventOrderEnriched) != 0 {
		t.Errorf("unexpected ORDER_ENRICHED")
	}
	pizza, _ := repo.GetMenuItem(ctx, "pizza")
	if pizza.RemainingStock != 100 {
		t.Errorf("partial deduction: pizza stock = %d", pizza.RemainingStock)
	}
}

func TestOrderCreatedUnknownMenuItem(t *testing.T) {
	svc, repo, b := newTestMenuService()
	ctx := context.Background()
	seedMenu(t, repo)

	var failed domain.OrderFailedEvent
	b.Subscribe("observer", []string{domain.EventOrderFailed}, func(ctx context.Context, body []byte, key string) error {
		return json.Unmarshal(body, &failed)
	})

	body := orderCreated(t, "o1", domain.OrderItem{MenuID: "nope", Quantity: 1})
	if err := svc.HandleEvent(ctx, body, domain.EventOrderCreated); err != nil {
		t.Fatal(err)
	}
	if failed.Reason != domain.ReasonValidationFailed {
		t.Errorf("reason = %q, want VALIDATION_FAILED", failed.Reason)
	}
}

func TestOrderCreatedRedeliveryDeductsOnce(t *testing.T) {
	svc, repo, b := newTestMenuService()
	ctx := context.Background()
	seedMenu(t, repo)

	body := orderCreated(t, "o1", domain.OrderItem{MenuID: "pizza", Quantity: 2})
	if err := svc.HandleEvent(ctx, body, domain.EventOrderCreated); err != nil {
		t.Fatal(err)
	}
	if err := svc.HandleEvent(ctx, body, domain.EventOrderCreated); err != nil {
		t.Fatal(err)
	}

	pizza, _ := repo.GetMenuItem(ctx, "pizza")
	if pizza.RemainingStock != 98 {
		t.Errorf("stock = %d, want 98 after redelivery", pizza.RemainingStock)
	}
	if b.Count(domain.EventOrderEnriched) != 1 {
		t.Errorf("ORDER_ENRICHED published %d times, want 1", b.Count(domain.EventOrderEnriched))
	}
}

func TestOrderCreatedReplaysRecordedDeduction(t *testing.T) {
	svc, repo, b := newTestMenuService()
	ctx := context.Background()
	seedMenu(t, repo)

	// Simulate a crash between the deduction commit and the dedup mark:
	// the ledger row exists, the dedup key does not.
	if _, _, err := repo.DeductForOrder(ctx, "o1", []domain.OrderItem{{MenuID: "pizza", Quantity: 2}}); err != nil {
		t.Fatal(err)
	}

	body := orderCreated(t, "o1", domain.OrderItem{MenuID: "pizza", Quantity: 2})
	if err := svc.HandleEvent(ctx, body, domain.EventOrderCreated); err != nil {
		t.Fatal(err)
	}

	pizza, _ := repo.GetMenuItem(ctx, "pizza")
	if pizza.RemainingStock != 98 {
		t.Errorf("stock = %d, want 98 (no double deduction)", pizza.RemainingStock)
	}
	if b.Count(domain.EventOrderEnriched) != 1 {
		t.Errorf("ORDER_ENRICHED published %d times, want 1", b.Count(domain.EventOrderEnriched))
	}
}

func TestTableOccupyFailedRestoresStock(t *testing.T) {
	svc, repo, _ := newTestMenuService()
	ctx := context.Background()
	seedMenu(t, repo)

	body := orderCreated(t, "o1", domain.OrderItem{MenuID: "pizza", Quantity: 5})
	if err := svc.HandleEvent(ctx, body, domain.EventOrderCreated); err != nil {
		t.Fatal(err)
	}
	pizza, _ := repo.GetMenuItem(ctx, "pizza")
	if pizza.RemainingStock != 95 {
		t.Fatalf("stock = %d, want 95", pizza.RemainingStock)
	}

	fail, _ := json.Marshal(domain.TableOccupyFailedEvent{OrderID: "o1", TableID: "t1", Reason: "Table already occupied"})
	if err := svc.HandleEvent(ctx, fail, domain.EventTableOccupyFailed); err != nil {
		t.Fatal(err)
	}
	pizza, _ = repo.GetMenuItem(ctx, "pizza")
	if pizza.RemainingStock != 100 {
		t.Errorf("stock = %d, want 100 after restore", pizza.RemainingStock)
	}

	// Redelivered failure must not restore twice.
	if err := svc.HandleEvent(ctx, fail, domain.EventTableOccupyFailed); err != nil {
		t.Fatal(err)
	}
	pizza, _ = repo.GetMenuItem(ctx, "pizza")
	if pizza.RemainingStock != 100 {
		t.Errorf("stock = %d after redelivered restore, want 100", pizza.RemainingStock)
	}
}

func TestOccupyFailureBeforeOrderCreated(t *testing.T) {
	svc, repo, b := newTestMenuService()
	ctx := context.Background()
	seedMenu(t, repo)

	// The failure overtook the creation event; the late ORDER_CREATED
	// must not deduct stock for the dead order.
	fail, _ := json.Marshal(domain.TableOccupyFailedEvent{OrderID: "o1", TableID: "t1", Reason: "Table not found"})
	if err := svc.HandleEvent(ctx, fail, domain.EventTableOccupyFailed); err != nil {
		t.Fatal(err)
	}

	body := orderCreated(t, "o1", domain.OrderItem{MenuID: "pizza", Quantity: 2})
	if err := svc.HandleEvent(ctx, body, domain.EventOrderCreated); err != nil {
		t.Fatal(err)
	}

	pizza, _ := repo.GetMenuItem(ctx, "pizza")
	if pizza.RemainingStock != 100 {
		t.Errorf("stock = %d, want 100", pizza.RemainingStock)
	}
	if b.Count(domain.EventOrderEnriched) != 0 {
		t.Errorf("unexpected ORDER_ENRICHED for dead order")
	}
}
