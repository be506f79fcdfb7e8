package cmd

import (
	"fmt"
	"io"
	"strconv"

	"resnet_lib/nn"
	"resnet_lib/nn/layers"
	"resnet_lib/nn/models"
	"resnet_lib/utils"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	return table
}

func SummaryHandler(cmd *cobra.Command, args []string) error {
	cfg, err := modelConfig(cmd)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()

	planOnly, err := cmd.Flags().GetBool("plan")
	if err != nil {
		return err
	}
	if planOnly {
		if cfg.Model != utils.ModelPoseResNet {
			return fmt.Errorf("--plan is only available for %s", utils.ModelPoseResNet)
		}
		return printPosePlan(w, cfg)
	}

	m, err := models.New(cfg)
	if err != nil {
		return err
	}

	var data [][]string
	for i, c := range m.Children() {
		data = append(data, []string{strconv.Itoa(i), describe(c), strconv.Itoa(nn.NumParams(c))})
	}
	table := newTable(w, []string{"#", "BLOCK", "PARAMS"})
	table.AppendBulk(data)
	table.Render()

	fmt.Fprintf(w, "\n%s\n", m.Tag())
	fmt.Fprintf(w, "residual blocks: %d\n", nn.Count[*layers.ResBlock](m))
	fmt.Fprintf(w, "parameters: %d\n", nn.NumParams(m))
	return nil
}

// describe names a top-level child; long chains are summarized.
func describe(m nn.Module) string {
	seq, ok := m.(*nn.Sequential)
	if !ok || len(seq.Layers) == 0 {
		return m.Tag()
	}
	if len(seq.Layers) <= 3 {
		return seq.Tag()
	}
	return fmt.Sprintf("%d x %s ... %s", len(seq.Layers), seq.Layers[0].Tag(), seq.Layers[len(seq.Layers)-1].Tag())
}

func printPosePlan(w io.Writer, cfg utils.ModelConfig) error {
	plan, err := models.PoseResNetPlan(models.PoseResNetConfig{
		InChannels:  cfg.InChannels,
		OutChannels: cfg.OutChannels,
		Nker:        cfg.Nker,
		NumLayers:   cfg.NumLayers,
	})
	if err != nil {
		return err
	}

	table := newTable(w, []string{"STAGE", "BLOCK", "KIND", "KERNEL", "IN", "NOMINAL IN", "OUT"})
	for _, b := range plan {
		kind := "basic"
		if b.Bottleneck {
			kind = "bottleneck"
		}
		table.Append([]string{
			strconv.Itoa(b.Stage),
			strconv.Itoa(b.Index),
			kind,
			strconv.Itoa(b.KernelSize),
			strconv.Itoa(b.InChannels),
			strconv.Itoa(b.NominalInChannels),
			strconv.Itoa(b.OutChannels),
		})
	}
	table.Render()
	return nil
}
