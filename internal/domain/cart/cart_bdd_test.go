package cart

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/cucumber/godog"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type cartTestContext struct {
	catalog map[string]Snapshot
	kv      *memKV
	store   *Store
}

func (c *cartTestContext) reset() {
	c.catalog = make(map[string]Snapshot)
	c.kv = newMemKV()
	c.store = c.newStore()
}

func (c *cartTestContext) newStore() *Store {
	return NewStore(Key("bdd"), NewKVPersister(c.kv, "bdd"), nil, zap.NewNop())
}

func (c *cartTestContext) theCatalogContains(table *godog.Table) error {
	if len(table.Rows) < 2 {
		return errors.New("catalog table needs a header and at least one row")
	}
	for _, row := range table.Rows[1:] {
		if len(row.Cells) != 3 {
			return fmt.Errorf("expected 3 cells, got %d", len(row.Cells))
		}
		price, err := decimal.NewFromString(row.Cells[2].Value)
		if err != nil {
			return errors.Wrap(err, "parse price")
		}
		id := row.Cells[0].Value
		c.catalog[id] = Snapshot{ProductID: id, Name: row.Cells[1].Value, Price: price}
	}
	return nil
}

func (c *cartTestContext) anEmptyCart() error {
	c.store.Clear()
	return nil
}

func (c *cartTestContext) theStoredCartDocument(doc *godog.DocString) error {
	return c.kv.Set(context.Background(), Key("bdd"), doc.Content)
}

func (c *cartTestContext) iAddOf(quantity int, id string) error {
	item, ok := c.catalog[id]
	if !ok {
		return fmt.Errorf("product %q is not in the catalog", id)
	}
	c.store.AddItem(item, quantity)
	return nil
}

func (c *cartTestContext) iRemove(id string) error {
	c.store.RemoveItem(id)
	return nil
}

func (c *cartTestContext) iSetTheQuantityOfTo(id string, quantity int) error {
	c.store.UpdateQuantity(id, quantity)
	return nil
}

func (c *cartTestContext) theCartIsReloadedFromStorage() error {
	c.store = c.newStore()
	c.store.Restore(context.Background())
	return nil
}

func (c *cartTestContext) theCartHasLines(n int) error {
	if got := len(c.store.Snapshot().Items); got != n {
		return fmt.Errorf("expected %d lines, got %d", n, got)
	}
	return nil
}

func (c *cartTestContext) theCartIsEmpty() error {
	if s := c.store.Snapshot(); !s.Empty() {
		return fmt.Errorf("expected empty cart, got %d lines", len(s.Items))
	}
	return nil
}

func (c *cartTestContext) theLineHasQuantity(id string, quantity int) error {
	l, ok := c.store.Snapshot().Line(id)
	if !ok {
		return fmt.Errorf("no line for %q", id)
	}
	if l.Quantity != quantity {
		return fmt.Errorf("expected quantity %d for %q, got %d", quantity, id, l.Quantity)
	}
	return nil
}

func (c *cartTestContext) theCartLinesAre(list string) error {
	want := strings.Split(list, ",")
	got := ids(c.store.Snapshot())
	if strings.Join(got, ",") != strings.Join(want, ",") {
		return fmt.Errorf("expected lines %v, got %v", want, got)
	}
	return nil
}

func (c *cartTestContext) theCartTotalIs(total string) error {
	want, err := decimal.NewFromString(total)
	if err != nil {
		return errors.Wrap(err, "parse total")
	}
	if got := c.store.Snapshot().Total; !got.Equal(want) {
		return fmt.Errorf("expected total %s, got %s", want, got)
	}
	return nil
}

func initializeCartScenario(ctx *godog.ScenarioContext) {
	tc := &cartTestContext{}

	ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	// Given
	ctx.Step(`^the catalog contains:$`, tc.theCatalogContains)
	ctx.Step(`^an empty cart$`, tc.anEmptyCart)
	ctx.Step(`^the stored cart document:$`, tc.theStoredCartDocument)

	// When
	ctx.Step(`^I add (-?\d+) of "([^"]*)"$`, tc.iAddOf)
	ctx.Step(`^I remove "([^"]*)"$`, tc.iRemove)
	ctx.Step(`^I set the quantity of "([^"]*)" to (-?\d+)$`, tc.iSetTheQuantityOfTo)
	ctx.Step(`^the cart is reloaded from storage$`, tc.theCartIsReloadedFromStorage)

	// Then
	ctx.Step(`^the cart has (\d+) lines?$`, tc.theCartHasLines)
	ctx.Step(`^the cart is empty$`, tc.theCartIsEmpty)
	ctx.Step(`^the line "([^"]*)" has quantity (\d+)$`, tc.theLineHasQuantity)
	ctx.Step(`^the cart lines are "([^"]*)"$`, tc.theCartLinesAre)
	ctx.Step(`^the cart total is "([^"]*)"$`, tc.theCartTotalIs)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: initializeCartScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
