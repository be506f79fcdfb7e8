package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"resnet_lib/envconfig"
	"resnet_lib/nn"
	"resnet_lib/nn/models"
	"resnet_lib/split"
	"resnet_lib/tensor"
	"resnet_lib/utils"

	"github.com/spf13/cobra"
)

type splitNet struct {
	cfg        utils.ModelConfig
	model      models.Model
	head, tail *nn.Sequential
	cut        int
}

// splitModel builds the configured network and cuts its pipeline. Client and
// server agree on the weights because both derive them from the same seed.
func splitModel(cmd *cobra.Command) (*splitNet, error) {
	cfg, err := modelConfig(cmd)
	if err != nil {
		return nil, err
	}
	cut, err := cmd.Flags().GetInt("cut")
	if err != nil {
		return nil, err
	}
	m, err := models.New(cfg)
	if err != nil {
		return nil, err
	}
	seq, err := models.Pipeline(m)
	if err != nil {
		return nil, err
	}
	head, tail, err := seq.Split(cut)
	if err != nil {
		return nil, err
	}
	return &splitNet{cfg: cfg, model: m, head: head, tail: tail, cut: cut}, nil
}

func ServeHandler(cmd *cobra.Command, args []string) error {
	sn, err := splitModel(cmd)
	if err != nil {
		return err
	}
	addr, err := cmd.Flags().GetString("addr")
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer ln.Close()
	go func() {
		<-cmd.Context().Done()
		ln.Close()
	}()
	slog.Info("server config", "env", envconfig.Values())
	slog.Info("serving", "addr", ln.Addr().String(), "model", sn.model.Tag(), "cut", sn.cut, "tail_stages", len(sn.tail.Layers))

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go func() {
			defer conn.Close()
			if err := split.Serve(split.NewProtocol(conn, conn), sn.tail); err != nil {
				slog.Error("session failed", "remote", conn.RemoteAddr().String(), "error", err)
			}
		}()
	}
}

func ClientHandler(cmd *cobra.Command, args []string) error {
	start := time.Now()
	var stats utils.TimingStats

	t := time.Now()
	sn, err := splitModel(cmd)
	if err != nil {
		return err
	}
	stats.ModelInitTime = time.Since(t)

	addr, err := cmd.Flags().GetString("addr")
	if err != nil {
		return err
	}
	compact, err := cmd.Flags().GetBool("compact")
	if err != nil {
		return err
	}
	runs, err := cmd.Flags().GetInt("runs")
	if err != nil {
		return err
	}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	remote, err := split.Dial(split.NewProtocol(conn, conn), sn.model.Tag(), sn.cut, compact)
	if err != nil {
		return err
	}
	slog.Info("session opened", "session", remote.Session, "addr", addr, "cut", sn.cut, "compact", compact)

	t = time.Now()
	x, err := randomInput(cmd, sn.cfg.Seed)
	if err != nil {
		return err
	}
	stats.InputLoadingTime = time.Since(t)

	var out *tensor.Tensor
	for i := 0; i < max(runs, 1); i++ {
		t = time.Now()
		act, err := sn.head.Forward(x)
		if err != nil {
			return err
		}
		stats.HeadTime += time.Since(t)

		t2 := time.Now()
		if out, err = remote.Forward(act); err != nil {
			return err
		}
		stats.TransferTime += time.Since(t2)
		stats.ForwardPassTime += time.Since(t)
	}
	if err := remote.Close(); err != nil {
		return err
	}
	stats.TotalTime = time.Since(start)

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s split at %d (session %s)\n", sn.model.Tag(), sn.cut, remote.Session)
	printStats(w, out)
	utils.Output = w
	utils.PrintTimingStats(&stats, max(runs, 1))
	return nil
}
