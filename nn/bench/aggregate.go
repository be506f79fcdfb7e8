package bench

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"resnet_lib/nn"
	"resnet_lib/tensor"
	"resnet_lib/utils"

	"github.com/olekukonko/tablewriter"
)

// Point is the forward timing of one stage of a flattened network.
type Point struct {
	Net   string
	Stage int
	Layer string
	Shape []int
	Fwd   time.Duration
}

// CutCost is the split of forward time between the local head (stages
// before Cut) and the remote tail.
type CutCost struct {
	Cut        int
	Head, Tail time.Duration
}

// RunPoint times every stage of net, feeding each stage the output of the
// previous one.
func RunPoint(net BuiltNet, x *tensor.Tensor, numRuns int) ([]Point, error) {
	return runStages(net, x, func(layer nn.Module, in *tensor.Tensor) (time.Duration, *tensor.Tensor, error) {
		return TimeLayer(layer, in, numRuns)
	})
}

// RunPointParallel is RunPoint with every stage timed by numIters passes
// spread over nWorkers goroutines.
func RunPointParallel(net BuiltNet, x *tensor.Tensor, numIters, nWorkers int) ([]Point, error) {
	return runStages(net, x, func(layer nn.Module, in *tensor.Tensor) (time.Duration, *tensor.Tensor, error) {
		fwd, err := TimeLayerParallel(layer, in, numIters, nWorkers)
		if err != nil {
			return 0, nil, err
		}
		out, err := layer.Forward(in)
		return fwd, out, err
	})
}

func runStages(net BuiltNet, x *tensor.Tensor, timeStage func(nn.Module, *tensor.Tensor) (time.Duration, *tensor.Tensor, error)) ([]Point, error) {
	points := make([]Point, 0, len(net.Layers))
	for i, layer := range net.Layers {
		fwd, out, err := timeStage(layer, x)
		if err != nil {
			return nil, fmt.Errorf("%s stage %d: %w", net.Name, i, err)
		}
		points = append(points, Point{
			Net:   net.Name,
			Stage: i,
			Layer: layer.Tag(),
			Shape: append([]int(nil), out.Shape...),
			Fwd:   fwd,
		})
		x = out
	}
	return points, nil
}

// Aggregate sums stage timings for every possible cut point 0..len(points).
func Aggregate(points []Point) []CutCost {
	var total time.Duration
	for _, p := range points {
		total += p.Fwd
	}
	costs := make([]CutCost, 0, len(points)+1)
	var head time.Duration
	for cut := 0; cut <= len(points); cut++ {
		costs = append(costs, CutCost{Cut: cut, Head: head, Tail: total - head})
		if cut < len(points) {
			head += points[cut].Fwd
		}
	}
	return costs
}

// WriteCSV writes one row per stage with the forward time in microseconds.
func WriteCSV(w io.Writer, points []Point) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"net", "stage", "layer", "out_shape", "fwd_us"}); err != nil {
		return err
	}
	for _, p := range points {
		row := []string{
			p.Net,
			strconv.Itoa(p.Stage),
			p.Layer,
			fmt.Sprint(p.Shape),
			strconv.FormatFloat(utils.DurationUS(p.Fwd), 'f', 3, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTable renders the per-stage timings as an aligned table.
func WriteTable(w io.Writer, points []Point) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"STAGE", "LAYER", "OUTPUT", "FORWARD"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	for _, p := range points {
		table.Append([]string{strconv.Itoa(p.Stage), p.Layer, fmt.Sprint(p.Shape), p.Fwd.String()})
	}
	table.Render()
}
