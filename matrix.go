package sortnet

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"golang.org/x/sync/errgroup"
)

// Matrix is a set of configurations given as lists; every combination is
// one Request. Empty lists take the default of the field.
//
//	algorithms = ["bitonic", "odd-even"]
//	sizes = [8, 16]
//	types = ["int32", "uint16"]
//	widths = [128, 256]
//	features = ["avx2"]
//	policies = ["size"]
//	boundaries = ["auto"]
type Matrix struct {
	Algorithms []string `toml:"algorithms"`
	Sizes      []int    `toml:"sizes"`
	Types      []string `toml:"types"`
	Widths     []int    `toml:"widths"`
	Features   []string `toml:"features"`
	Policies   []string `toml:"policies"`
	Boundaries []string `toml:"boundaries"`
	Blocks     []int    `toml:"blocks"`
	Aligned    bool     `toml:"aligned"`
	// Concurrency bounds parallel generation. Zero uses GOMAXPROCS.
	Concurrency int `toml:"concurrency"`
}

// LoadMatrix decodes a TOML matrix. Unknown keys are configuration errors.
func LoadMatrix(r io.Reader) (*Matrix, error) {
	var m Matrix
	md, err := toml.NewDecoder(r).Decode(&m)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing matrix: %v", ErrInvalidConfig, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%w: unknown matrix keys %s", ErrInvalidConfig, strings.Join(keys, ", "))
	}
	if len(m.Sizes) == 0 {
		return nil, fmt.Errorf("%w: matrix lists no sizes", ErrInvalidConfig)
	}
	return &m, nil
}

func orDefault[T any](list []T, def T) []T {
	if len(list) == 0 {
		return []T{def}
	}
	return list
}

func parseAll[T any](names []string, def T, parse func(string) (T, error)) ([]T, error) {
	if len(names) == 0 {
		return []T{def}, nil
	}
	out := make([]T, len(names))
	for i, n := range names {
		v, err := parse(n)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Requests expands the matrix in a fixed order: algorithm, type, size,
// width, features, policy, boundary, blocks.
func (m *Matrix) Requests() ([]Request, error) {
	algs, err := parseAll(m.Algorithms, Bitonic, ParseAlgorithm)
	if err != nil {
		return nil, err
	}
	types, err := parseAll(m.Types, Int32, ParseType)
	if err != nil {
		return nil, err
	}
	features, err := parseAll(m.Features, Features(0), ParseFeatures)
	if err != nil {
		return nil, err
	}
	policies, err := parseAll(m.Policies, FavorSize, ParsePolicy)
	if err != nil {
		return nil, err
	}
	boundaries, err := parseAll(m.Boundaries, BoundaryAuto, ParseBoundaryMode)
	if err != nil {
		return nil, err
	}
	var reqs []Request
	for _, alg := range algs {
		for _, typ := range types {
			for _, n := range orDefault(m.Sizes, 0) {
				for _, w := range orDefault(m.Widths, 0) {
					for _, f := range features {
						for _, p := range policies {
							for _, bm := range boundaries {
								for _, blocks := range orDefault(m.Blocks, 1) {
									reqs = append(reqs, Request{Algorithm: alg, Target: Target{
										Type: typ, N: n, VectorBits: w, Blocks: blocks,
										Policy: p, Features: f, Boundary: bm, Aligned: m.Aligned,
									}})
								}
							}
						}
					}
				}
			}
		}
	}
	return reqs, nil
}

// MatrixResult is the outcome of one request.
type MatrixResult struct {
	Request Request
	Kernel  *Kernel
	Err     error
}

// GenerateMatrix generates every request with at most limit running at once
// (GOMAXPROCS when limit <= 0). Results keep the request order; per-request
// failures are reported in MatrixResult.Err. The returned error is only set
// when ctx ends first.
func GenerateMatrix(ctx context.Context, reqs []Request, limit int) ([]MatrixResult, error) {
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	results := make([]MatrixResult, len(reqs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, req := range reqs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			k, err := Generate(req)
			results[i] = MatrixResult{Request: req, Kernel: k, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
