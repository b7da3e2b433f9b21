package main

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/grava-ml/grava/backend/webgpu"
	"github.com/grava-ml/grava/tensor"
)

func benchCmd() *cli.Command {
	var (
		samples    int
		channels   int
		rows       int
		cols       int
		numFilters int
		filterSize int
		stride     int
		iters      int
	)

	return &cli.Command{
		Name:  "bench",
		Usage: "Time the convolution kernels for a given shape",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "samples", Aliases: []string{"n"}, Usage: "batch size", Value: 8, Destination: &samples},
			&cli.IntFlag{Name: "channels", Aliases: []string{"k"}, Usage: "input channels", Value: 16, Destination: &channels},
			&cli.IntFlag{Name: "rows", Usage: "input rows", Value: 64, Destination: &rows},
			&cli.IntFlag{Name: "cols", Usage: "input columns", Value: 64, Destination: &cols},
			&cli.IntFlag{Name: "filters", Usage: "number of filters", Value: 32, Destination: &numFilters},
			&cli.IntFlag{Name: "filter-size", Usage: "filter extent (square)", Value: 3, Destination: &filterSize},
			&cli.IntFlag{Name: "stride", Usage: "stride (both axes)", Value: 1, Destination: &stride},
			&cli.IntFlag{Name: "iters", Usage: "timed iterations per pass", Value: 10, Destination: &iters},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if !webgpu.IsAvailable() {
				return cli.Exit("error: no WebGPU adapter available", 1)
			}
			gpu, err := webgpu.New()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: create context: %v", err), 1)
			}
			defer gpu.Release()

			rng := rand.New(rand.NewSource(1))
			data := randomTensor(rng, samples, channels, rows, cols)
			filters := randomTensor(rng, numFilters, channels, filterSize, filterSize)
			output := tensor.New(0, 0, 0, 0)

			conv := webgpu.NewConv(gpu)
			defer conv.Clear()
			if err := conv.Setup(data, filters, stride, stride); err != nil {
				return cli.Exit(fmt.Sprintf("error: setup: %v", err), 1)
			}

			_, _, outNr, outNc := conv.OutputSize()
			fmt.Printf("Device:    %s\n", gpu.Name())
			fmt.Printf("Input:     (%d, %d, %d, %d)\n", samples, channels, rows, cols)
			fmt.Printf("Filters:   (%d, %d, %d, %d), stride %d\n", numFilters, channels, filterSize, filterSize, stride)
			fmt.Printf("Output:    (%d, %d, %d, %d)\n", samples, numFilters, outNr, outNc)
			fmt.Printf("Forward:   %s algorithm\n", conv.ForwardAlgorithm())
			fmt.Printf("BwdFilter: %s algorithm\n", conv.BackwardFiltersAlgorithm())
			fmt.Printf("Workspace: %d bytes\n\n", conv.WorkspaceSize())

			gi := randomTensor(rng, samples, numFilters, outNr, outNc)
			dataGrad := tensor.New(samples, channels, rows, cols)
			filterGrad := tensor.New(numFilters, channels, filterSize, filterSize)

			passes := []struct {
				name string
				run  func() error
			}{
				{"forward", func() error { return conv.Forward(output, data, filters) }},
				{"backward-data", func() error { return conv.BackwardData(gi, filters, dataGrad) }},
				{"backward-filters", func() error { return conv.BackwardFilters(gi, data, filterGrad) }},
			}
			for _, pass := range passes {
				// Warmup compiles the pipeline before timing.
				if err := pass.run(); err != nil {
					return cli.Exit(fmt.Sprintf("error: %s: %v", pass.name, err), 1)
				}
				start := time.Now()
				for i := 0; i < iters; i++ {
					if err := pass.run(); err != nil {
						return cli.Exit(fmt.Sprintf("error: %s: %v", pass.name, err), 1)
					}
				}
				elapsed := time.Since(start)
				fmt.Printf("%-16s %10s / iter\n", pass.name, elapsed/time.Duration(iters))
			}
			return nil
		},
	}
}

func randomTensor(rng *rand.Rand, n, k, nr, nc int) *tensor.Tensor {
	t := tensor.New(n, k, nr, nc)
	data := t.Data()
	for i := range data {
		data[i] = rng.Float32()*2 - 1
	}
	return t
}
