// Package allocate splits pending leads across branches by product weights.
package allocate

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"leadflow_backend/internal/leadsync/domain"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

// Store is the storage the allocator reads.
type Store interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	CountEnabledBranches(ctx context.Context) (int, error)
	ListShares(ctx context.Context, productID uuid.UUID) ([]domain.BranchShare, error)
	ListPendingLeads(ctx context.Context, product string) ([]domain.Lead, error)
}

// Batch is the leads assigned to one branch.
type Batch struct {
	Branch domain.Branch
	Leads  []domain.Lead
}

// ProductAllocation is one product's batches in branch order.
type ProductAllocation struct {
	Product domain.Product
	Batches []Batch
}

// Allocator computes allocation plans. It never writes.
type Allocator struct {
	store Store
	log   *logger.Logger
}

// New creates an allocator.
func New(store Store, log *logger.Logger) *Allocator {
	return &Allocator{store: store, log: log}
}

// Allocate returns the batches to dispatch for this run. Products without
// destinations or with fewer pending leads than the threshold are left out.
// An error is returned only when the threshold gate itself cannot be read.
func (a *Allocator) Allocate(ctx context.Context) ([]ProductAllocation, error) {
	log := a.log.WithContext(ctx)

	threshold, ok, err := a.threshold(ctx, log)
	if err != nil || !ok {
		return nil, err
	}

	products, err := a.store.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	var plan []ProductAllocation
	for _, product := range products {
		plog := log.With("product", product.Name)

		shares, err := a.store.ListShares(ctx, product.ID)
		if err != nil {
			plog.Error("load product shares failed", "error", err)
			continue
		}
		if len(shares) == 0 {
			plog.Debug("no distribution configured, skipping product")
			continue
		}

		pending, err := a.store.ListPendingLeads(ctx, product.Name)
		if err != nil {
			plog.Error("load pending leads failed", "error", err)
			continue
		}
		if len(pending) < threshold {
			plog.Debug("pending leads below threshold", "pending", len(pending), "threshold", threshold)
			continue
		}

		batches := Split(pending, shares)
		if len(batches) == 0 {
			continue
		}

		assigned := 0
		for _, b := range batches {
			assigned += len(b.Leads)
		}
		plog.Info("product allocated",
			"pending", len(pending),
			"assigned", assigned,
			"branches", len(batches),
		)
		plan = append(plan, ProductAllocation{Product: product, Batches: batches})
	}
	return plan, nil
}

// ParseThreshold reads the leading integer of raw. Leading whitespace and
// an optional sign are allowed; anything after the digits ("10.0",
// "10 leads") is ignored.
func ParseThreshold(raw string) (int, error) {
	s := strings.TrimLeftFunc(raw, unicode.IsSpace)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, fmt.Errorf("threshold %q does not start with a number", raw)
	}
	return strconv.Atoi(s[:end])
}

// threshold reads and validates the sync threshold. ok is false when
// allocation must be skipped for this run.
func (a *Allocator) threshold(ctx context.Context, log *logger.Logger) (int, bool, error) {
	raw, found, err := a.store.GetSetting(ctx, domain.SettingSyncThreshold)
	if err != nil {
		return 0, false, err
	}
	if !found {
		log.Info("sync threshold not set, skipping allocation")
		return 0, false, nil
	}

	threshold, err := ParseThreshold(raw)
	if err != nil {
		log.Warn("sync threshold is not a number, skipping allocation", "value", raw)
		return 0, false, nil
	}

	branches, err := a.store.CountEnabledBranches(ctx)
	if err != nil {
		return 0, false, err
	}
	if branches == 0 {
		log.Info("no enabled branches, skipping allocation")
		return 0, false, nil
	}
	if threshold < branches {
		log.Info("sync threshold below enabled branch count, skipping allocation",
			"threshold", threshold, "branches", branches)
		return 0, false, nil
	}
	return threshold, true, nil
}

// Percentages returns each share's rounded percentage of the total weight.
// Values are rounded independently and need not sum to 100.
func Percentages(shares []domain.BranchShare) []int {
	total := 0
	for _, s := range shares {
		total += s.Weight
	}
	out := make([]int, len(shares))
	if total <= 0 {
		return out
	}
	for i, s := range shares {
		out[i] = int(math.Round(float64(s.Weight) / float64(total) * 100))
	}
	return out
}

// Split assigns pending leads to shares by sequential consumption: each
// branch in order takes round(pct * len(pending) / 100) leads from the front
// of what remains. Leads left after the last branch stay unassigned. Only
// non-empty batches are returned, and pending is not modified.
func Split(pending []domain.Lead, shares []domain.BranchShare) []Batch {
	pcts := Percentages(shares)
	n := len(pending)

	var batches []Batch
	next := 0
	for i, share := range shares {
		want := int(math.Round(float64(pcts[i]*n) / 100))
		end := min(next+want, n)
		if end <= next {
			continue
		}
		leads := make([]domain.Lead, end-next)
		copy(leads, pending[next:end])
		batches = append(batches, Batch{Branch: share.Branch, Leads: leads})
		next = end
	}
	return batches
}
