package main

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	cli "github.com/urfave/cli/v2"

	sortnet "github.com/Akron/sortnet-go"
	"github.com/Akron/sortnet-go/internal/chart"
)

// Shared flag definitions.
var (
	sizeFlag = &cli.IntFlag{
		Name:    "size",
		Aliases: []string{"n"},
		Usage:   "Number of elements to sort",
		Value:   8,
	}
	typeFlag = &cli.StringFlag{
		Name:    "type",
		Aliases: []string{"t"},
		Usage:   "Element type (int8 ... uint64, C spellings such as int32_t accepted)",
		Value:   "int32",
	}
	algorithmFlag = &cli.StringFlag{
		Name:    "algorithm",
		Aliases: []string{"a"},
		Usage:   "Network: bitonic, batcher, bose-nelson, odd-even, minimum-depth, transposition, balanced",
		Value:   "bitonic",
	}
	widthFlag = &cli.IntFlag{
		Name:    "width",
		Aliases: []string{"w"},
		Usage:   "Vector width in bits (64, 128, 256, 512); 0 picks the smallest that fits",
	}
	featuresFlag = &cli.StringFlag{
		Name:    "features",
		Aliases: []string{"f"},
		Usage:   "Instruction sets, e.g. 'avx2' or 'sse4.1,avx512bw'; 'host' uses the running CPU",
		Value:   "host",
	}
	policyFlag = &cli.StringFlag{
		Name:  "policy",
		Usage: "Tie-break between legal encodings: size or uop",
		Value: "size",
	}
	boundaryFlag = &cli.StringFlag{
		Name:  "boundary",
		Usage: "Partial register handling: auto, full, masked or split",
		Value: "auto",
	}
	blocksFlag = &cli.IntFlag{
		Name:  "blocks",
		Usage: "Number of independent arrays sorted side by side",
		Value: 1,
	}
	alignedFlag = &cli.BoolFlag{
		Name:  "aligned",
		Usage: "Assume vector-aligned buffers",
	}
	networkSizeFlag = &cli.IntFlag{
		Name:  "network-size",
		Usage: "Pad the network to this many inputs (0 for none)",
	}
	outputFlag = &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "Output file (default standard output)",
	}
	configFlag = &cli.StringFlag{
		Name:     "config",
		Usage:    "Path to a TOML matrix file",
		Required: true,
	}
)

var targetFlags = []cli.Flag{
	sizeFlag, typeFlag, widthFlag, featuresFlag, policyFlag, boundaryFlag, blocksFlag, alignedFlag,
}

func parseTarget(c *cli.Context) (sortnet.Target, error) {
	typ, err := sortnet.ParseType(c.String("type"))
	if err != nil {
		return sortnet.Target{}, err
	}
	policy, err := sortnet.ParsePolicy(c.String("policy"))
	if err != nil {
		return sortnet.Target{}, err
	}
	boundary, err := sortnet.ParseBoundaryMode(c.String("boundary"))
	if err != nil {
		return sortnet.Target{}, err
	}
	var features sortnet.Features
	if name := c.String("features"); name == "host" {
		features = sortnet.HostFeatures()
	} else if features, err = sortnet.ParseFeatures(name); err != nil {
		return sortnet.Target{}, err
	}
	return sortnet.Target{
		Type:       typ,
		N:          c.Int("size"),
		VectorBits: c.Int("width"),
		Blocks:     c.Int("blocks"),
		Policy:     policy,
		Features:   features,
		Boundary:   boundary,
		Aligned:    c.Bool("aligned"),
	}, nil
}

func parseRequest(c *cli.Context) (sortnet.Request, error) {
	t, err := parseTarget(c)
	if err != nil {
		return sortnet.Request{}, err
	}
	alg, err := sortnet.ParseAlgorithm(c.String("algorithm"))
	if err != nil {
		return sortnet.Request{}, err
	}
	return sortnet.Request{Algorithm: alg, Target: t, NetworkN: c.Int("network-size")}, nil
}

// output opens the --output file, or standard output.
func output(c *cli.Context) (io.WriteCloser, error) {
	path := c.String("output")
	if path == "" {
		return nopCloser{os.Stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return f, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func withOutput(c *cli.Context, write func(w io.Writer) error) error {
	w, err := output(c)
	if err != nil {
		return err
	}
	if err := write(w); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func handleGenerate(c *cli.Context) error {
	req, err := parseRequest(c)
	if err != nil {
		return err
	}
	k, err := sortnet.Generate(req)
	if err != nil {
		return err
	}
	log.Printf("%s on %s: %d rounds, %d registers", req.Algorithm, k.Target, len(k.Code), k.Registers())
	return withOutput(c, func(w io.Writer) error {
		if c.String("format") == "binary" {
			data, err := k.MarshalBinary()
			if err != nil {
				return err
			}
			_, err = w.Write(data)
			return err
		}
		return k.WriteListing(w)
	})
}

func handleNetwork(c *cli.Context) error {
	alg, err := sortnet.ParseAlgorithm(c.String("algorithm"))
	if err != nil {
		return err
	}
	nw, err := sortnet.NewNetwork(alg, c.Int("size"))
	if err != nil {
		return err
	}
	return withOutput(c, func(w io.Writer) error { return sortnet.WriteNetwork(w, nw) })
}

func handleBest(c *cli.Context) error {
	t, err := parseTarget(c)
	if err != nil {
		return err
	}
	ranked, err := sortnet.Rank(t)
	if err != nil {
		return err
	}
	if len(ranked) == 0 {
		return fmt.Errorf("no candidate network encodes on %s", t)
	}
	return withOutput(c, func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ALGORITHM\tNETWORK\tSCORE\tDEPTH\tINSTRUCTIONS")
		for _, r := range ranked {
			st := r.Kernel.Stats()
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", r.Algorithm, r.NetworkN, r.Score, st.Depth, st.Instructions())
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		if c.Bool("listing") {
			fmt.Fprintln(w)
			return ranked[0].Kernel.WriteListing(w)
		}
		return nil
	})
}

func handleVerify(c *cli.Context) error {
	req, err := parseRequest(c)
	if err != nil {
		return err
	}
	k, err := sortnet.Generate(req)
	if err != nil {
		return err
	}
	opts := sortnet.VerifyOptions{
		Trials:  c.Int("trials"),
		Seed:    c.Uint64("seed"),
		ZeroOne: c.Bool("zero-one"),
	}
	if err := sortnet.Verify(k, opts); err != nil {
		return err
	}
	fmt.Printf("ok: %s on %s\n", req.Algorithm, k.Target)
	return nil
}

func loadRequests(path string) ([]sortnet.Request, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("opening matrix: %w", err)
	}
	defer f.Close()
	m, err := sortnet.LoadMatrix(bufio.NewReader(f))
	if err != nil {
		return nil, 0, err
	}
	reqs, err := m.Requests()
	return reqs, m.Concurrency, err
}

func handleMatrix(c *cli.Context) error {
	reqs, limit, err := loadRequests(c.String("config"))
	if err != nil {
		return err
	}
	results, err := sortnet.GenerateMatrix(c.Context, reqs, limit)
	if err != nil {
		return err
	}
	failed := 0
	err = withOutput(c, func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ALGORITHM\tTARGET\tROUNDS\tINSTRUCTIONS\tBYTES\tUOPS\tERROR")
		for _, r := range results {
			if r.Err != nil {
				failed++
				fmt.Fprintf(tw, "%s\t%s\t-\t-\t-\t-\t%v\n", r.Request.Algorithm, r.Request.Target, r.Err)
				continue
			}
			st := r.Kernel.Stats()
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t\n",
				r.Request.Algorithm, r.Kernel.Target, st.Depth, st.Instructions(), st.Size, st.Uops)
		}
		return tw.Flush()
	})
	log.Printf("%d configurations, %d failed", len(results), failed)
	return err
}

// parseSizes accepts "4,8,16" and ranges such as "2-32".
func parseSizes(s string) ([]int, error) {
	var sizes []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		lo, hi, isRange := strings.Cut(part, "-")
		from, err := strconv.Atoi(lo)
		if err != nil {
			return nil, fmt.Errorf("invalid size %q", part)
		}
		to := from
		if isRange {
			if to, err = strconv.Atoi(hi); err != nil || to < from {
				return nil, fmt.Errorf("invalid size range %q", part)
			}
		}
		for n := from; n <= to; n++ {
			sizes = append(sizes, n)
		}
	}
	return sizes, nil
}

func handleChart(c *cli.Context) error {
	if path := c.String("matrix"); path != "" {
		reqs, limit, err := loadRequests(path)
		if err != nil {
			return err
		}
		results, err := sortnet.GenerateMatrix(c.Context, reqs, limit)
		if err != nil {
			return err
		}
		return withOutput(c, func(w io.Writer) error { return chart.Kernels(w, results) })
	}
	sizes, err := parseSizes(c.String("sizes"))
	if err != nil {
		return err
	}
	return withOutput(c, func(w io.Writer) error {
		return chart.Networks(w, sortnet.Algorithms(), sizes)
	})
}

func handleInspect(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("inspect takes one encoded kernel file")
	}
	data, err := os.ReadFile(c.Args().First())
	if err != nil {
		return err
	}
	t, alg, err := sortnet.PeekTarget(data)
	if err != nil {
		return err
	}
	fmt.Printf("%s on %s\n", alg, t)
	if c.IsSet("round") {
		rc, err := sortnet.DecodeRound(data, c.Int("round"))
		if err != nil {
			return err
		}
		fmt.Printf("round %d: %v\n", c.Int("round"), rc.Pairs)
		for _, s := range rc.Steps {
			fmt.Printf("\t%s\n", s.Mnemonic(t))
		}
		return nil
	}
	var k sortnet.Kernel
	if err := k.UnmarshalBinary(data); err != nil {
		return err
	}
	return k.WriteListing(os.Stdout)
}

var App = &cli.App{
	Name:  "sortnet",
	Usage: "Generate SIMD sorting-network kernels for small arrays",
	Commands: []*cli.Command{
		{
			Name:  "generate",
			Usage: "Generate a kernel and print its listing or binary encoding",
			Flags: append([]cli.Flag{algorithmFlag, networkSizeFlag, outputFlag,
				&cli.StringFlag{Name: "format", Usage: "listing or binary", Value: "listing"},
			}, targetFlags...),
			Action: handleGenerate,
		},
		{
			Name:   "network",
			Usage:  "Print the raw, normalized and grouped comparator network",
			Flags:  []cli.Flag{algorithmFlag, sizeFlag, outputFlag},
			Action: handleNetwork,
		},
		{
			Name:  "best",
			Usage: "Rank candidate networks and padded sizes for a target",
			Flags: append([]cli.Flag{outputFlag,
				&cli.BoolFlag{Name: "listing", Usage: "Also print the listing of the winner"},
			}, targetFlags...),
			Action: handleBest,
		},
		{
			Name:  "verify",
			Usage: "Generate a kernel and check it against a reference sort in the emulator",
			Flags: append([]cli.Flag{algorithmFlag, networkSizeFlag,
				&cli.IntFlag{Name: "trials", Usage: "Random inputs to test", Value: 1000},
				&cli.Uint64Flag{Name: "seed", Usage: "Seed of the random inputs", Value: 1},
				&cli.BoolFlag{Name: "zero-one", Usage: "Also test every 0-1 input (small sizes)"},
			}, targetFlags...),
			Action: handleVerify,
		},
		{
			Name:   "matrix",
			Usage:  "Generate every configuration of a TOML matrix and summarize",
			Flags:  []cli.Flag{configFlag, outputFlag},
			Action: handleMatrix,
		},
		{
			Name:  "chart",
			Usage: "Render an HTML chart of network depths or, with --matrix, kernel sizes",
			Flags: []cli.Flag{outputFlag,
				&cli.StringFlag{Name: "sizes", Usage: "Network sizes, e.g. '2-32' or '4,8,16'", Value: "2-32"},
				&cli.StringFlag{Name: "matrix", Usage: "TOML matrix of kernels to chart"},
			},
			Action: handleChart,
		},
		{
			Name:      "inspect",
			Usage:     "Describe an encoded kernel written by 'generate --format binary'",
			ArgsUsage: "FILE",
			Flags:     []cli.Flag{&cli.IntFlag{Name: "round", Usage: "Only decode this round"}},
			Action:    handleInspect,
		},
	},
}
