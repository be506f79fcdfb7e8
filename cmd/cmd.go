package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"resnet_lib/envconfig"
	"resnet_lib/logutil"
	"resnet_lib/nn/models"
	"resnet_lib/utils"

	"github.com/spf13/cobra"
)

func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

func addModelFlags(cmd *cobra.Command, model string) {
	def := utils.DefaultModelConfig(model)
	cmd.Flags().String("model", def.Model, "Architecture: resnet, poseresnet or srresnet")
	cmd.Flags().Int("in", def.InChannels, "Input channels")
	cmd.Flags().Int("out", def.OutChannels, "Output channels")
	cmd.Flags().Int("nker", def.Nker, "Base feature width")
	cmd.Flags().String("learning-type", def.LearningType, "plain or residual")
	cmd.Flags().String("norm", def.Norm, "bnorm, inorm or none")
	cmd.Flags().Int("nblk", def.Nblk, "Residual blocks (resnet, srresnet)")
	cmd.Flags().Int("num-layers", def.NumLayers, fmt.Sprintf("Depth %v (poseresnet)", models.PoseDepths()))
	cmd.Flags().Uint64("seed", 0, "Initialization seed (0 uses RESNET_SEED)")
}

func modelConfig(cmd *cobra.Command) (utils.ModelConfig, error) {
	var cfg utils.ModelConfig
	var err error
	get := func(name string, dst *int) {
		if err == nil {
			*dst, err = cmd.Flags().GetInt(name)
		}
	}
	getString := func(name string, dst *string) {
		if err == nil {
			*dst, err = cmd.Flags().GetString(name)
		}
	}
	getString("model", &cfg.Model)
	get("in", &cfg.InChannels)
	get("out", &cfg.OutChannels)
	get("nker", &cfg.Nker)
	getString("learning-type", &cfg.LearningType)
	getString("norm", &cfg.Norm)
	get("nblk", &cfg.Nblk)
	get("num-layers", &cfg.NumLayers)
	if err == nil {
		cfg.Seed, err = cmd.Flags().GetUint64("seed")
	}
	if err != nil {
		return cfg, err
	}
	cfg.Model = strings.ToLower(cfg.Model)
	return cfg, utils.ValidateConfig(&cfg)
}

func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:   "resnet",
		Short: "Residual image networks: ResNet, PoseResNet and SRResNet",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Disable usage printing on errors
			cmd.SilenceUsage = true
			slog.SetDefault(logutil.NewLogger(os.Stderr, logutil.Level(envconfig.Debug)))
		},
	}

	summaryCmd := &cobra.Command{
		Use:   "summary",
		Short: "Show the blocks and parameter counts of a network",
		Args:  cobra.NoArgs,
		RunE:  SummaryHandler,
	}
	addModelFlags(summaryCmd, utils.ModelResNet)
	summaryCmd.Flags().Bool("plan", false, "Only print the PoseResNet block plan, without allocating parameters")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate a network on a random input",
		Args:  cobra.NoArgs,
		RunE:  RunHandler,
	}
	addModelFlags(runCmd, utils.ModelResNet)
	runCmd.Flags().String("shape", "1 3 32 32", "Input shape N C H W")
	runCmd.Flags().Int("runs", 1, "Number of forward passes")

	upscaleCmd := &cobra.Command{
		Use:   "upscale INPUT OUTPUT",
		Short: "Upscale an image 4x with SRResNet",
		Args:  cobra.ExactArgs(2),
		RunE:  UpscaleHandler,
	}
	addModelFlags(upscaleCmd, utils.ModelSRResNet)
	upscaleCmd.Flags().String("baseline", "", "Also write a Catmull-Rom 4x resize to this path")

	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "Time every stage of a network",
		Args:  cobra.NoArgs,
		RunE:  BenchHandler,
	}
	addModelFlags(benchCmd, utils.ModelResNet)
	benchCmd.Flags().String("shape", "1 3 32 32", "Input shape N C H W")
	benchCmd.Flags().Int("runs", 3, "Forward passes per stage")
	benchCmd.Flags().Int("workers", 1, "Goroutines sharing the forward passes of each stage")
	benchCmd.Flags().String("csv", "", "Write per-stage timings to this CSV file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tail of a split network",
		Args:  cobra.NoArgs,
		RunE:  ServeHandler,
	}
	addModelFlags(serveCmd, utils.ModelResNet)
	serveCmd.Flags().String("addr", "127.0.0.1:7070", "Listen address")
	serveCmd.Flags().Int("cut", 1, "Stages evaluated by the client")

	clientCmd := &cobra.Command{
		Use:   "client",
		Short: "Evaluate the head of a split network and send the rest to a server",
		Args:  cobra.NoArgs,
		RunE:  ClientHandler,
	}
	addModelFlags(clientCmd, utils.ModelResNet)
	clientCmd.Flags().String("addr", "127.0.0.1:7070", "Server address")
	clientCmd.Flags().Int("cut", 1, "Stages evaluated locally")
	clientCmd.Flags().Bool("compact", false, "Send activations in half precision")
	clientCmd.Flags().String("shape", "1 3 32 32", "Input shape N C H W")
	clientCmd.Flags().Int("runs", 1, "Number of forward passes")

	envs := envconfig.AsMap()
	names := make([]string, 0, len(envs))
	for name := range envs {
		names = append(names, name)
	}
	slices.Sort(names)
	envVars := make([]envconfig.EnvVar, 0, len(names))
	for _, name := range names {
		envVars = append(envVars, envs[name])
	}
	for _, cmd := range []*cobra.Command{runCmd, upscaleCmd, benchCmd, serveCmd, clientCmd} {
		appendEnvDocs(cmd, envVars)
	}

	rootCmd.AddCommand(
		summaryCmd,
		runCmd,
		upscaleCmd,
		benchCmd,
		serveCmd,
		clientCmd,
	)

	return rootCmd
}
