package cmd

import (
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"time"

	"resnet_lib/envconfig"
	"resnet_lib/imageproc"
	"resnet_lib/nn/bench"
	"resnet_lib/nn/models"
	"resnet_lib/tensor"
	"resnet_lib/utils"

	"github.com/spf13/cobra"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

func randomInput(cmd *cobra.Command, seed uint64) (*tensor.Tensor, error) {
	shapeStr, err := cmd.Flags().GetString("shape")
	if err != nil {
		return nil, err
	}
	shape, err := utils.ParseShape(shapeStr)
	if err != nil {
		return nil, err
	}
	if seed == 0 {
		seed = envconfig.Seed
	}
	x := tensor.New(shape...)
	x.Uniform(1, rand.NewSource(seed+1))
	return x, nil
}

func printStats(w io.Writer, out *tensor.Tensor) {
	mean, std := stat.MeanStdDev(out.Data, nil)
	fmt.Fprintf(w, "output shape: %v\n", out.Shape)
	fmt.Fprintf(w, "min %.6g  max %.6g  mean %.6g  std %.6g\n", floats.Min(out.Data), floats.Max(out.Data), mean, std)
}

func RunHandler(cmd *cobra.Command, args []string) error {
	start := time.Now()
	var stats utils.TimingStats

	cfg, err := modelConfig(cmd)
	if err != nil {
		return err
	}
	runs, err := cmd.Flags().GetInt("runs")
	if err != nil {
		return err
	}

	t := time.Now()
	m, err := models.New(cfg)
	if err != nil {
		return err
	}
	stats.ModelInitTime = time.Since(t)

	t = time.Now()
	x, err := randomInput(cmd, cfg.Seed)
	if err != nil {
		return err
	}
	stats.InputLoadingTime = time.Since(t)

	var out *tensor.Tensor
	for i := 0; i < max(runs, 1); i++ {
		t = time.Now()
		if out, err = m.Forward(x); err != nil {
			return err
		}
		stats.ForwardPassTime += time.Since(t)
	}
	stats.TotalTime = time.Since(start)

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, m.Tag())
	printStats(w, out)
	utils.Output = w
	utils.PrintTimingStats(&stats, max(runs, 1))
	return nil
}

func UpscaleHandler(cmd *cobra.Command, args []string) error {
	start := time.Now()
	var stats utils.TimingStats

	cfg, err := modelConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Model != utils.ModelSRResNet {
		return fmt.Errorf("upscale needs %s, not %s", utils.ModelSRResNet, cfg.Model)
	}

	t := time.Now()
	m, err := models.New(cfg)
	if err != nil {
		return err
	}
	stats.ModelInitTime = time.Since(t)

	t = time.Now()
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	img, format, err := imageproc.Decode(f)
	if err != nil {
		return err
	}
	img = imageproc.Composite(img)
	x, err := imageproc.ToTensor(img, cfg.InChannels)
	if err != nil {
		return err
	}
	stats.InputLoadingTime = time.Since(t)
	slog.Debug("input image", "path", args[0], "format", format, "bounds", img.Bounds())

	t = time.Now()
	out, err := m.Forward(x)
	if err != nil {
		return err
	}
	stats.ForwardPassTime = time.Since(t)

	t = time.Now()
	up, err := imageproc.FromTensor(out)
	if err != nil {
		return err
	}
	if err := writeImage(args[1], up); err != nil {
		return err
	}
	baseline, err := cmd.Flags().GetString("baseline")
	if err != nil {
		return err
	}
	if baseline != "" {
		size := img.Bounds().Size().Mul(models.SRScale)
		resized, err := imageproc.Resize(img, size, imageproc.ResizeCatmullrom)
		if err != nil {
			return err
		}
		if err := writeImage(baseline, resized); err != nil {
			return err
		}
	}
	stats.OutputTime = time.Since(t)
	stats.TotalTime = time.Since(start)

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s -> %s (%v -> %v)\n", args[0], args[1], img.Bounds().Size(), up.Bounds().Size())
	utils.Output = w
	utils.PrintTimingStats(&stats, 1)
	return nil
}

func writeImage(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := imageproc.Encode(f, img, path); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func BenchHandler(cmd *cobra.Command, args []string) error {
	cfg, err := modelConfig(cmd)
	if err != nil {
		return err
	}
	runs, err := cmd.Flags().GetInt("runs")
	if err != nil {
		return err
	}
	workers, err := cmd.Flags().GetInt("workers")
	if err != nil {
		return err
	}
	csvPath, err := cmd.Flags().GetString("csv")
	if err != nil {
		return err
	}

	net, _, err := bench.Build(cfg)
	if err != nil {
		return err
	}
	x, err := randomInput(cmd, cfg.Seed)
	if err != nil {
		return err
	}
	var points []bench.Point
	if workers > 1 {
		points, err = bench.RunPointParallel(net, x, runs, workers)
	} else {
		points, err = bench.RunPoint(net, x, runs)
	}
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	bench.WriteTable(w, points)

	fmt.Fprintln(w)
	if !net.Splittable {
		fmt.Fprintf(w, "timing only: %s learning adds the input to the output, no cut positions\n", cfg.LearningType)
	} else {
		table := newTable(w, []string{"CUT", "CLIENT", "SERVER"})
		for _, c := range bench.Aggregate(points) {
			table.Append([]string{fmt.Sprint(c.Cut), c.Head.String(), c.Tail.String()})
		}
		table.Render()
	}

	if csvPath != "" {
		f, err := os.Create(csvPath)
		if err != nil {
			return err
		}
		if err := bench.WriteCSV(f, points); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		slog.Info("wrote timings", "path", csvPath, "stages", len(points))
	}
	return nil
}
