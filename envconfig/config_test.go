package envconfig

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig(t *testing.T) {
	t.Setenv("RESNET_DEBUG", "")
	t.Setenv("RESNET_NUM_THREADS", "")
	t.Setenv("RESNET_SEED", "")
	LoadConfig()
	assert.False(t, Debug)
	assert.Equal(t, runtime.GOMAXPROCS(0), NumThreads)
	assert.Equal(t, uint64(1), Seed)

	t.Setenv("RESNET_DEBUG", "false")
	LoadConfig()
	assert.False(t, Debug)

	t.Setenv("RESNET_DEBUG", "1")
	LoadConfig()
	assert.True(t, Debug)

	t.Setenv("RESNET_DEBUG", "yes please")
	LoadConfig()
	assert.True(t, Debug)

	t.Setenv("RESNET_NUM_THREADS", "3")
	t.Setenv("RESNET_SEED", "42")
	LoadConfig()
	assert.Equal(t, 3, NumThreads)
	assert.Equal(t, uint64(42), Seed)
}

func TestInvalidSettingsKeepDefaults(t *testing.T) {
	t.Setenv("RESNET_NUM_THREADS", "-2")
	t.Setenv("RESNET_SEED", "abc")
	LoadConfig()
	assert.Equal(t, runtime.GOMAXPROCS(0), NumThreads)
	assert.Equal(t, uint64(1), Seed)
}

func TestValues(t *testing.T) {
	t.Setenv("RESNET_SEED", "9")
	LoadConfig()
	vals := Values()
	assert.Equal(t, "9", vals["RESNET_SEED"])
	assert.Len(t, vals, len(AsMap()))
}
