package store

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultDriver is used when no driver is configured.
const DefaultDriver = "bbolt"

var drivers = map[string]func(path string) (Store, error){
	"bbolt":  NewBoltStore,   // single-file key/value database
	"json":   NewJSONStore,   // one JSON document, rewritten on every change
	"sqlite": NewSQLiteStore, // summary columns plus the record document
}

// SupportedDrivers lists the driver names NewStore accepts, sorted.
var SupportedDrivers = supportedDrivers()

func supportedDrivers() []string {
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewStore opens the store for driver at path. An empty driver means
// DefaultDriver.
func NewStore(driver, path string) (Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store path is required")
	}
	driver = strings.ToLower(strings.TrimSpace(driver))
	if driver == "" {
		driver = DefaultDriver
	}

	open, ok := drivers[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported store driver %q (supported: %s)",
			driver, strings.Join(SupportedDrivers, ", "))
	}
	st, err := open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s store at %s: %w", driver, path, err)
	}
	return st, nil
}
