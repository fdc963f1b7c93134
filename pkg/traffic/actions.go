package traffic

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rmax-ai/trafficgen/pkg/client"
)

// Built-in action names.
const (
	ActionCreateProduct  = "create_product"
	ActionQueryProducts  = "query_products"
	ActionDeleteProduct  = "delete_product"
	ActionTriggerError   = "trigger_error"
	ActionTriggerSlow    = "trigger_slow"
	ActionTriggerDBError = "trigger_db_error"
)

// DefaultSearchRatio is how often query_products searches instead of listing.
const DefaultSearchRatio = 0.7

// Weight binds a built-in action to its selection weight.
type Weight struct {
	Name   string  `mapstructure:"name" json:"name" yaml:"name"`
	Weight float64 `mapstructure:"weight" json:"weight" yaml:"weight"`
}

// DefaultWeights is the traffic shape used when none is configured.
func DefaultWeights() []Weight {
	return []Weight{
		{Name: ActionCreateProduct, Weight: 0.38},
		{Name: ActionQueryProducts, Weight: 0.45},
		{Name: ActionDeleteProduct, Weight: 0.08},
		{Name: ActionTriggerError, Weight: 0.03},
		{Name: ActionTriggerSlow, Weight: 0.03},
		{Name: ActionTriggerDBError, Weight: 0.03},
	}
}

// ActionNames lists the built-in actions in their default order.
func ActionNames() []string {
	return []string{
		ActionCreateProduct, ActionQueryProducts, ActionDeleteProduct,
		ActionTriggerError, ActionTriggerSlow, ActionTriggerDBError,
	}
}

// APIClient is the part of the target API the actions drive.
type APIClient interface {
	Create(ctx context.Context, p client.NewProduct) (client.Created, error)
	List(ctx context.Context) (client.Listing, error)
	Search(ctx context.Context, term string) (client.Listing, error)
	Delete(ctx context.Context, id int64) (client.Deletion, error)
	TriggerError(ctx context.Context) error
	TriggerSlow(ctx context.Context) (client.Listing, error)
	TriggerDBError(ctx context.Context, kind string) error
}

var _ APIClient = (*client.Client)(nil)

// Catalog builds the built-in actions around a client and a registry.
// All randomness comes from the rng it is given, which is also the
// scheduler's, so a seeded run is reproducible end to end.
type Catalog struct {
	api         APIClient
	registry    Registry
	rng         *rand.Rand
	now         func() time.Time
	searchRatio float64
	logger      *zap.Logger

	mu sync.Mutex // serializes invocations from callers other than the scheduler
}

// CatalogOption customizes a Catalog.
type CatalogOption func(*Catalog)

// WithClock overrides the time source used for product names.
func WithClock(now func() time.Time) CatalogOption {
	return func(c *Catalog) { c.now = now }
}

// WithSearchRatio sets the probability that query_products searches.
func WithSearchRatio(p float64) CatalogOption {
	return func(c *Catalog) { c.searchRatio = p }
}

// WithCatalogLogger sets the logger for action level warnings.
func WithCatalogLogger(l *zap.Logger) CatalogOption {
	return func(c *Catalog) { c.logger = l }
}

// NewCatalog returns a catalog. A nil registry gets an in-memory one with
// the default capacity.
func NewCatalog(api APIClient, registry Registry, rng *rand.Rand, opts ...CatalogOption) *Catalog {
	if registry == nil {
		registry = NewMemoryRegistry(DefaultRegistryCapacity)
	}
	c := &Catalog{
		api:         api,
		registry:    registry,
		rng:         rng,
		now:         time.Now,
		searchRatio: DefaultSearchRatio,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Registry returns the registry the catalog mutates.
func (c *Catalog) Registry() Registry { return c.registry }

// Invoker returns the invoke function of a built-in action.
func (c *Catalog) Invoker(name string) (func(ctx context.Context) Outcome, error) {
	var fn func(ctx context.Context) Outcome
	switch name {
	case ActionCreateProduct:
		fn = c.createProduct
	case ActionQueryProducts:
		fn = c.queryProducts
	case ActionDeleteProduct:
		fn = c.deleteProduct
	case ActionTriggerError:
		fn = c.triggerError
	case ActionTriggerSlow:
		fn = c.triggerSlow
	case ActionTriggerDBError:
		fn = c.triggerDBError
	default:
		return nil, configErr("actions", "unknown action %q", name)
	}
	return fn, nil
}

// Actions resolves weights into actions, keeping their order.
func (c *Catalog) Actions(weights []Weight) ([]Action, error) {
	actions := make([]Action, 0, len(weights))
	for _, w := range weights {
		fn, err := c.Invoker(w.Name)
		if err != nil {
			return nil, err
		}
		actions = append(actions, Action{Name: w.Name, Weight: w.Weight, Invoke: fn})
	}
	return actions, nil
}

// Invoke runs one built-in action outside the scheduler loop.
func (c *Catalog) Invoke(ctx context.Context, name string) (Outcome, error) {
	fn, err := c.Invoker(name)
	if err != nil {
		return Outcome{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	out := fn(ctx)
	out.Action = name
	out.Latency = time.Since(start)
	out.At = start
	return out, nil
}

func (c *Catalog) createProduct(ctx context.Context) Outcome {
	p := newProduct(c.rng, c.now())
	created, err := c.api.Create(ctx, p)
	if err != nil {
		return failed(ctx, err)
	}

	if created.ID == 0 {
		c.logger.Warn("create_missing_id", zap.String("name", p.Name), zap.String("message", created.Message))
		return succeeded(created.StatusCode, "created %q without a usable id", p.Name)
	}
	if err := c.registry.Add(ctx, created.ID); err != nil {
		c.logger.Warn("registry_add_failed", zap.Int64("id", created.ID), zap.Error(err))
	}
	c.observeRegistry(ctx)
	return succeeded(created.StatusCode, "created %q with id %d", p.Name, created.ID)
}

func (c *Catalog) queryProducts(ctx context.Context) Outcome {
	if c.rng.Float64() < c.searchRatio {
		term := searchTerm(c.rng)
		found, err := c.api.Search(ctx, term)
		if err != nil {
			return failed(ctx, err)
		}
		return succeeded(found.StatusCode, "search %q returned %d products", term, len(found.Products))
	}

	all, err := c.api.List(ctx)
	if err != nil {
		return failed(ctx, err)
	}
	return succeeded(all.StatusCode, "list returned %d products", len(all.Products))
}

func (c *Catalog) deleteProduct(ctx context.Context) Outcome {
	id, ok, err := c.registry.Pick(ctx, c.rng)
	if err != nil {
		c.logger.Warn("registry_pick_failed", zap.Error(err))
		return Outcome{
			Class:   ClassRegistry,
			Detail:  fmt.Sprintf("registry unavailable: %v", err),
			aborted: ctx.Err() != nil,
		}
	}
	if !ok {
		return skipped("no known products to delete")
	}

	deletion, err := c.api.Delete(ctx, id)
	if err != nil {
		out := failed(ctx, err)
		if client.IsNotFound(err) {
			out.Detail = fmt.Sprintf("product %d already gone on the target", id)
		}
		return out
	}
	if !deletion.Confirmed {
		return Outcome{
			Class:      ClassRemote,
			HTTPStatus: deletion.StatusCode,
			Detail:     fmt.Sprintf("delete of %d not confirmed: %s", id, deletion.Message),
		}
	}

	if _, err := c.registry.Remove(ctx, id); err != nil {
		c.logger.Warn("registry_remove_failed", zap.Int64("id", id), zap.Error(err))
	}
	c.observeRegistry(ctx)
	return succeeded(deletion.StatusCode, "deleted product %d", id)
}

func (c *Catalog) triggerError(ctx context.Context) Outcome {
	return expectedFailure(ctx, c.api.TriggerError(ctx), "error route")
}

func (c *Catalog) triggerSlow(ctx context.Context) Outcome {
	slow, err := c.api.TriggerSlow(ctx)
	if err != nil {
		return failed(ctx, err)
	}
	return succeeded(slow.StatusCode, "slow query returned %d products", len(slow.Products))
}

func (c *Catalog) triggerDBError(ctx context.Context) Outcome {
	kind := dbErrorKind(c.rng)
	return expectedFailure(ctx, c.api.TriggerDBError(ctx, kind), "db error "+kind)
}

// expectedFailure classifies a trigger call: an HTTP error status is what
// the trigger is for, so only an unreachable target is a real failure.
func expectedFailure(ctx context.Context, err error, what string) Outcome {
	if err == nil {
		return Outcome{Class: ClassUnexpected, HTTPStatus: http.StatusOK, Detail: what + " did not fail"}
	}
	if status := client.StatusCode(err); status != 0 {
		return succeeded(status, "%s triggered status %d", what, status)
	}
	return failed(ctx, err)
}

func (c *Catalog) observeRegistry(ctx context.Context) {
	if n, err := c.registry.Len(ctx); err == nil {
		registrySize.Set(float64(n))
	}
}
