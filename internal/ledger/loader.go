package ledger

import (
	"context"
	"fmt"
)

// ChartSource provides the chart of accounts and its mappings.
type ChartSource interface {
	ListAccounts(ctx context.Context) ([]Account, error)
	ListMappings(ctx context.Context) ([]Mapping, error)
}

// LoadResolver reads and validates the mapping table.
func LoadResolver(ctx context.Context, src ChartSource) (*Resolver, error) {
	chart, err := src.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: list accounts: %w", err)
	}
	mappings, err := src.ListMappings(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: list mappings: %w", err)
	}
	return NewResolver(chart, mappings)
}
