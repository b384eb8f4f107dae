package payments

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/slye-labs/slye-backend/pkg/enums"
)

var ErrUnknownPackage = errors.New("unknown credit package")

// Package is one purchasable credit bundle. PriceMinor is in the currency's minor unit.
type Package struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Credits    int            `json:"credits"`
	PriceMinor int64          `json:"price"`
	Currency   enums.Currency `json:"currency"`
}

// DisplayPrice formats the price for humans, e.g. "$4.99".
func (p Package) DisplayPrice() string {
	amount := decimal.New(p.PriceMinor, -2).StringFixed(2)
	if p.Currency == enums.CurrencyUSD {
		return "$" + amount
	}
	return amount + " " + strings.ToUpper(string(p.Currency))
}

// Catalog is the fixed pricing table; checkout sessions and verification both read it.
type Catalog struct {
	packages []Package
	byID     map[string]Package
}

func NewCatalog(packages ...Package) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]Package, len(packages))}
	for _, p := range packages {
		switch {
		case strings.TrimSpace(p.ID) == "":
			return nil, errors.New("package id is required")
		case p.Credits <= 0:
			return nil, fmt.Errorf("package %q: credits must be positive", p.ID)
		case p.PriceMinor <= 0:
			return nil, fmt.Errorf("package %q: price must be positive", p.ID)
		case !p.Currency.IsValid():
			return nil, fmt.Errorf("package %q: invalid currency %q", p.ID, p.Currency)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("package %q defined twice", p.ID)
		}
		c.byID[p.ID] = p
		c.packages = append(c.packages, p)
	}
	return c, nil
}

// DefaultCatalog is the catalog sold in production.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(
		Package{ID: "starter", Name: "Starter", Credits: 50, PriceMinor: 499, Currency: enums.CurrencyUSD},
		Package{ID: "popular", Name: "Popular", Credits: 150, PriceMinor: 999, Currency: enums.CurrencyUSD},
		Package{ID: "pro", Name: "Pro", Credits: 500, PriceMinor: 2499, Currency: enums.CurrencyUSD},
	)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) Get(id string) (Package, error) {
	p, ok := c.byID[strings.TrimSpace(id)]
	if !ok {
		return Package{}, fmt.Errorf("%w: %s", ErrUnknownPackage, id)
	}
	return p, nil
}

// List returns packages in catalog order.
func (c *Catalog) List() []Package {
	out := make([]Package, len(c.packages))
	copy(out, c.packages)
	return out
}
