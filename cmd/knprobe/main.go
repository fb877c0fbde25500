// Copyright 2020 The go-probeum Authors
// This file is part of go-probeum.
//
// go-probeum is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-probeum is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-probeum. If not, see <http://www.gnu.org/licenses/>.

// Command knprobe is a smoke-test harness for the collective runtime:
// it stands up a simulated team in one process over internal/simnet
// and runs a single k-nomial reduce across it, the library's
// equivalent of cmd/devp2p's protocol conformance commands.
package main

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"golang.org/x/sync/errgroup"
	"gopkg.in/urfave/cli.v1"

	"github.com/probeum/kncoll/internal/simnet"
	"github.com/probeum/kncoll/knomial"
	"github.com/probeum/kncoll/log"
	"github.com/probeum/kncoll/reduce"
	"github.com/probeum/kncoll/status"
	"github.com/probeum/kncoll/task"
	"github.com/probeum/kncoll/team"
	"github.com/probeum/kncoll/transport"
)

var (
	ranksFlag = cli.IntFlag{Name: "ranks", Value: 4, Usage: "team size"}
	radixFlag = cli.IntFlag{Name: "radix", Value: 2, Usage: "k-nomial tree fan-in"}
	rootFlag  = cli.IntFlag{Name: "root", Value: 0, Usage: "reduce root rank"}
	countFlag = cli.IntFlag{Name: "count", Value: 8, Usage: "element count"}
	opFlag    = cli.StringFlag{Name: "op", Value: "sum", Usage: "reduction operator (sum, max, min, prod)"}
)

var reduceCommand = cli.Command{
	Name:   "reduce",
	Usage:  "run a k-nomial reduce over a simulated team",
	Action: runReduce,
	Flags:  []cli.Flag{ranksFlag, radixFlag, rootFlag, countFlag, opFlag},
}

func main() {
	app := cli.NewApp()
	app.Name = "knprobe"
	app.Usage = "collective-communication runtime smoke tests"
	app.Commands = []cli.Command{reduceCommand}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func parseOp(name string) (reduce.Op, error) {
	switch name {
	case "sum":
		return reduce.Sum, nil
	case "max":
		return reduce.Max, nil
	case "min":
		return reduce.Min, nil
	case "prod":
		return reduce.Prod, nil
	default:
		return 0, fmt.Errorf("unknown operator %q", name)
	}
}

// makeSrc fills an 8-byte-per-element float64 buffer with rank+1.0 at
// every element, so a sum reduce has an easily eyeballed expected
// result of size*(size+1)/2.
func makeSrc(count, rank int) []byte {
	buf := make([]byte, count*8)
	v := float64(rank + 1)
	for i := 0; i < count; i++ {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

func decodeFloat64s(buf []byte, count int) []float64 {
	out := make([]float64, count)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return out
}

func runReduce(ctx *cli.Context) error {
	size := ctx.Int(ranksFlag.Name)
	radix := ctx.Int(radixFlag.Name)
	root := ctx.Int(rootFlag.Name)
	count := ctx.Int(countFlag.Name)
	op, err := parseOp(ctx.String(opFlag.Name))
	if err != nil {
		return err
	}
	if size < 1 {
		return fmt.Errorf("ranks must be >= 1")
	}
	if root < 0 || root >= size {
		return fmt.Errorf("root out of range")
	}

	log15 := log.New("cmd", "knprobe")

	payloads := make([][]byte, size)
	for i := range payloads {
		payloads[i] = []byte{byte(i)}
	}
	teams, err := simnet.Bootstrap(size, payloads)
	if err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}
	log15.Info("team bootstrapped", "size", size)

	net := simnet.NewNetwork(size)
	dst := make([]byte, count*8)

	var g errgroup.Group
	for r := 0; r < size; r++ {
		r := r
		g.Go(func() error {
			return runRank(teams[r], net.Transport(r), op, count, radix, root, r, dst)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if root < size {
		fmt.Printf("reduce complete: op=%s count=%d radix=%d root=%d size=%d result=%v\n",
			ctx.String(opFlag.Name), count, radix, root, size, decodeFloat64s(dst, count))
	}
	return nil
}

func runRank(tm *team.Team, tr transport.Transport, op reduce.Op, count, radix, root, rank int, dst []byte) error {
	args := task.Args{
		Op:       op,
		Datatype: reduce.Float64,
		Count:    count,
		Src:      makeSrc(count, rank),
		Root:     root,
	}
	if rank == root {
		args.Dst = dst
	} else {
		args.Dst = make([]byte, count*8)
	}
	t, err := task.New(tm, args)
	if err != nil {
		return err
	}

	err = knomial.Start(t, tr, radix)
	for status.Is(err, status.InProgress) {
		err = knomial.Progress(t, tr)
	}
	if err != nil {
		return err
	}
	return knomial.Finalize(t)
}
