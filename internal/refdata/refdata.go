// Package refdata holds the read-only SKU master list and customer
// directory that order intake validates against.
package refdata

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed refdata.yaml
var defaultYAML []byte

// Customer is one entry of the customer directory.
type Customer struct {
	Name string `yaml:"name" json:"name"`
	Code string `yaml:"code,omitempty" json:"code,omitempty"`
	City string `yaml:"city,omitempty" json:"city,omitempty"`
}

// SKU is one product of the master list. AltFactor converts one UOM into
// AltUOM units.
type SKU struct {
	ID        string  `yaml:"id" json:"id"`
	Name      string  `yaml:"name" json:"name"`
	OilType   string  `yaml:"oil_type,omitempty" json:"oilType,omitempty"`
	UOM       string  `yaml:"uom" json:"uom"`
	AltUOM    string  `yaml:"alt_uom,omitempty" json:"altUom,omitempty"`
	AltFactor float64 `yaml:"alt_factor,omitempty" json:"altFactor,omitempty"`
	Rate      float64 `yaml:"rate,omitempty" json:"rate,omitempty"`
}

// Data is the loaded reference set. It is immutable after Parse.
type Data struct {
	Customers []Customer `yaml:"customers"`
	SKUs      []SKU      `yaml:"skus"`

	customers map[string]int
	skus      map[string]int
}

var defaultData = sync.OnceValue(func() *Data {
	d, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded reference data: %v", err))
	}
	return d
})

// Default returns the embedded reference data.
func Default() *Data {
	return defaultData()
}

// Load reads reference data from path. An empty path returns Default.
func Load(path string) (*Data, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read reference data: %w", err)
	}
	d, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// Parse decodes and validates YAML reference data. Unknown fields are
// rejected.
func Parse(data []byte) (*Data, error) {
	var d Data
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&d); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := d.index(); err != nil {
		return nil, fmt.Errorf("invalid reference data: %w", err)
	}
	return &d, nil
}

func (d *Data) index() error {
	var errs []error
	d.customers = make(map[string]int, len(d.Customers))
	for i, c := range d.Customers {
		k := key(c.Name)
		if k == "" {
			errs = append(errs, fmt.Errorf("customers[%d]: name is required", i))
			continue
		}
		if _, dup := d.customers[k]; dup {
			errs = append(errs, fmt.Errorf("customers[%d]: duplicate name %q", i, c.Name))
			continue
		}
		d.customers[k] = i
	}

	d.skus = make(map[string]int, 2*len(d.SKUs))
	for i, s := range d.SKUs {
		if key(s.ID) == "" || key(s.Name) == "" {
			errs = append(errs, fmt.Errorf("skus[%d]: id and name are required", i))
			continue
		}
		for _, k := range []string{key(s.ID), key(s.Name)} {
			if j, dup := d.skus[k]; dup && j != i {
				errs = append(errs, fmt.Errorf("skus[%d]: %q already names skus[%d]", i, k, j))
				continue
			}
			d.skus[k] = i
		}
	}
	return errors.Join(errs...)
}

// Customer looks a customer up by name, ignoring case and surrounding space.
func (d *Data) Customer(name string) (Customer, bool) {
	i, ok := d.customers[key(name)]
	if !ok {
		return Customer{}, false
	}
	return d.Customers[i], true
}

// SKU looks a product up by id or name, ignoring case.
func (d *Data) SKU(idOrName string) (SKU, bool) {
	i, ok := d.skus[key(idOrName)]
	if !ok {
		return SKU{}, false
	}
	return d.SKUs[i], true
}

func key(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
