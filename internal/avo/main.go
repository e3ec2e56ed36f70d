//go:build avogen
// +build avogen

package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	. "github.com/mmcloughlin/avo/build"

	sortnet "github.com/Akron/sortnet-go"
)

var (
	matrixPath = flag.String("matrix", "kernels.toml", "matrix of kernels to generate")
)

type namedKernel struct {
	name string
	k    *sortnet.Kernel
}

func loadRequests(path string) ([]sortnet.Request, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening matrix: %w", err)
	}
	defer f.Close()
	m, err := sortnet.LoadMatrix(f)
	if err != nil {
		return nil, fmt.Errorf("loading matrix: %w", err)
	}
	return m.Requests()
}

// collect generates the kernels of reqs the emitter can lower, once per
// name. Rows the selector cannot encode, or that need AVX-512 forms, are
// skipped with a note so the rest still builds.
func collect(reqs []sortnet.Request) ([]namedKernel, error) {
	var out []namedKernel
	seen := make(map[string]bool)
	for _, req := range reqs {
		k, err := sortnet.Generate(req)
		if errors.Is(err, sortnet.ErrNoEncoding) {
			log.Printf("skipping %s %s: %v", req.Algorithm, req.Target, err)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("generating %s %s: %w", req.Algorithm, req.Target, err)
		}
		name := kernelName(k)
		if seen[name] {
			continue
		}
		if err := checkEmittable(k); err != nil {
			log.Printf("skipping %s: %v", name, err)
			continue
		}
		seen[name] = true
		out = append(out, namedKernel{name: name, k: k})
	}
	return out, nil
}

// main emits one function per configuration of the matrix file.
func main() {
	flag.Parse()

	reqs, err := loadRequests(*matrixPath)
	if err != nil {
		log.Fatal(err)
	}
	kernels, err := collect(reqs)
	if err != nil {
		log.Fatal(err)
	}

	// Signatures only use builtin pointer types, so no package is loaded and
	// the stub file may be empty or missing when generation starts.
	ConstraintExpr("amd64")
	ConstraintExpr("!purego")
	for _, nk := range kernels {
		emitKernel(nk.name, nk.k)
	}

	Generate()
}
