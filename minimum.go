package sortnet

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/BurntSushi/toml"
)

//go:embed minimum_networks.toml
var minimumNetworksTOML string

type minimumTable struct {
	Network []struct {
		N     int   `toml:"n"`
		Pairs []int `toml:"pairs"`
	} `toml:"network"`
}

// loadMinimumNetworks decodes the embedded table once. The table is read only
// after loading.
var loadMinimumNetworks = sync.OnceValues(func() (map[int][]Pair, error) {
	var table minimumTable
	if _, err := toml.Decode(minimumNetworksTOML, &table); err != nil {
		return nil, fmt.Errorf("sortnet: decoding minimum network table: %w", err)
	}
	nets := map[int][]Pair{
		2: {{0, 1}},
		3: {{0, 2}, {0, 1}, {1, 2}},
	}
	for _, nw := range table.Network {
		if len(nw.Pairs)%2 != 0 {
			return nil, fmt.Errorf("sortnet: minimum network for n=%d has an odd pair list", nw.N)
		}
		nets[nw.N] = unflatten(nw.Pairs)
	}
	return nets, nil
})

// MaxMinimumN is the largest size with a known minimum-depth network.
const MaxMinimumN = 32

func minimumPairs(n int) ([]Pair, error) {
	nets, err := loadMinimumNetworks()
	if err != nil {
		return nil, err
	}
	pairs, ok := nets[n]
	if !ok {
		return nil, fmt.Errorf("%w: no minimum-depth network for n=%d (limit %d)",
			ErrInvalidConfig, n, MaxMinimumN)
	}
	return append([]Pair(nil), pairs...), nil
}
