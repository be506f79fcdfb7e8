package bench

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"resnet_lib/nn"
	"resnet_lib/nn/layers"
	"resnet_lib/nn/models"
	"resnet_lib/tensor"
	"resnet_lib/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func smallConfig(model string) utils.ModelConfig {
	cfg := utils.DefaultModelConfig(model)
	cfg.Nker = 2
	cfg.Nblk = 2
	cfg.NumLayers = 18
	return cfg
}

func TestFlatten(t *testing.T) {
	net, _, err := Build(smallConfig(utils.ModelResNet))
	require.NoError(t, err)
	assert.True(t, net.Splittable)
	// enc, 2 res blocks, dec, fc
	require.Len(t, net.Layers, 5)
	assert.IsType(t, &layers.ResBlock{}, net.Layers[1])
	assert.IsType(t, &layers.ResBlock{}, net.Layers[2])

	net, _, err = Build(smallConfig(utils.ModelSRResNet))
	require.NoError(t, err)
	// enc, trunk with skip, conv/shuffle/relu twice, fc
	require.Len(t, net.Layers, 9)
	assert.True(t, strings.HasPrefix(net.Layers[1].Tag(), "Skip["))
	assert.IsType(t, &layers.PixelShuffle{}, net.Layers[3])
}

func TestFlattenMatchesPipeline(t *testing.T) {
	for _, model := range []string{utils.ModelResNet, utils.ModelPoseResNet, utils.ModelSRResNet} {
		net, m, err := Build(smallConfig(model))
		require.NoError(t, err, model)
		seq, err := models.Pipeline(m)
		require.NoError(t, err, model)
		require.Len(t, net.Layers, len(seq.Layers), model)

		x := tensor.New(1, 3, 4, 4)
		x.Uniform(1, rand.NewSource(7))
		want, err := m.Forward(x)
		require.NoError(t, err, model)
		got, err := nn.NewSequential(net.Layers...).Forward(x)
		require.NoError(t, err, model)
		assert.True(t, tensor.AllClose(want, got, 1e-12), model)
	}
}

func TestFlattenResidualTimingOnly(t *testing.T) {
	cfg := smallConfig(utils.ModelResNet)
	cfg.LearningType = "residual"
	net, _, err := Build(cfg)
	require.NoError(t, err)
	assert.False(t, net.Splittable)
	assert.Len(t, net.Layers, 5)

	points, err := RunPoint(net, tensor.New(1, 3, 4, 4), 1)
	require.NoError(t, err)
	assert.Len(t, points, 5)
}

func TestRunPoint(t *testing.T) {
	net, _, err := Build(smallConfig(utils.ModelSRResNet))
	require.NoError(t, err)

	points, err := RunPoint(net, tensor.New(1, 3, 4, 4), 2)
	require.NoError(t, err)
	require.Len(t, points, len(net.Layers))
	assert.Equal(t, []int{1, 3, 16, 16}, points[len(points)-1].Shape)
	assert.Equal(t, []int{1, 2, 8, 8}, points[4].Shape)
	for i, p := range points {
		assert.Equal(t, i, p.Stage)
		assert.Equal(t, "srresnet", p.Net)
		assert.Equal(t, net.Layers[i].Tag(), p.Layer)
	}

	_, err = RunPoint(net, tensor.New(1, 4, 4, 4), 1)
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
}

func TestRunPointParallel(t *testing.T) {
	net, _, err := Build(smallConfig(utils.ModelSRResNet))
	require.NoError(t, err)

	serial, err := RunPoint(net, tensor.New(1, 3, 4, 4), 1)
	require.NoError(t, err)
	points, err := RunPointParallel(net, tensor.New(1, 3, 4, 4), 4, 2)
	require.NoError(t, err)
	require.Len(t, points, len(serial))
	for i := range points {
		assert.Equal(t, serial[i].Shape, points[i].Shape)
		assert.Equal(t, serial[i].Layer, points[i].Layer)
	}

	_, err = RunPointParallel(net, tensor.New(1, 4, 4, 4), 2, 2)
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
}

func TestAggregate(t *testing.T) {
	points := []Point{{Fwd: 3 * time.Millisecond}, {Fwd: 5 * time.Millisecond}, {Fwd: 2 * time.Millisecond}}
	want := []CutCost{
		{Cut: 0, Head: 0, Tail: 10 * time.Millisecond},
		{Cut: 1, Head: 3 * time.Millisecond, Tail: 7 * time.Millisecond},
		{Cut: 2, Head: 8 * time.Millisecond, Tail: 2 * time.Millisecond},
		{Cut: 3, Head: 10 * time.Millisecond, Tail: 0},
	}
	assert.Equal(t, want, Aggregate(points))
}

func TestWriteCSV(t *testing.T) {
	points := []Point{
		{Net: "resnet", Stage: 0, Layer: "CBR2D[Conv2D_3_2_3_3,ReLU]", Shape: []int{1, 2, 4, 4}, Fwd: 1500 * time.Nanosecond},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, points))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"resnet", "0", "CBR2D[Conv2D_3_2_3_3,ReLU]", "[1 2 4 4]", "1.500"}, rows[1])
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	WriteTable(&buf, []Point{{Stage: 3, Layer: "Upsample->4", Shape: []int{1, 1, 8, 8}, Fwd: time.Millisecond}})
	assert.Contains(t, buf.String(), "Upsample->4")
	assert.Contains(t, buf.String(), "STAGE")
}

func TestTimeLayerParallel(t *testing.T) {
	conv := layers.NewConv2D(2, 2, 3, 1, 1, true)
	d, err := TimeLayerParallel(conv, tensor.New(1, 2, 6, 6), 7, 3)
	require.NoError(t, err)
	assert.Greater(t, d, time.Duration(0))

	_, err = TimeLayerParallel(conv, tensor.New(1, 5, 6, 6), 4, 2)
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
}
