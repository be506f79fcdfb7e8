package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
)

var (
	// Set via RESNET_DEBUG in the environment
	Debug bool
	// Set via RESNET_NUM_THREADS in the environment
	NumThreads int
	// Set via RESNET_SEED in the environment
	Seed uint64
)

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"RESNET_DEBUG":       {"RESNET_DEBUG", Debug, "Show additional debug information (e.g. RESNET_DEBUG=1)"},
		"RESNET_NUM_THREADS": {"RESNET_NUM_THREADS", NumThreads, "Maximum number of batch items evaluated in parallel (default GOMAXPROCS)"},
		"RESNET_SEED":        {"RESNET_SEED", Seed, "Seed for parameter initialization (default 1)"},
	}
}

func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}

// Clean quotes and spaces from the value
func clean(key string) string {
	return strings.Trim(os.Getenv(key), "\"' ")
}

func init() {
	LoadConfig()
}

func LoadConfig() {
	// default values
	Debug = false
	NumThreads = runtime.GOMAXPROCS(0)
	Seed = 1

	if debug := clean("RESNET_DEBUG"); debug != "" {
		d, err := strconv.ParseBool(debug)
		if err == nil {
			Debug = d
		} else {
			Debug = true
		}
	}

	if nt := clean("RESNET_NUM_THREADS"); nt != "" {
		val, err := strconv.Atoi(nt)
		if err != nil || val <= 0 {
			slog.Error("invalid setting must be greater than zero", "RESNET_NUM_THREADS", nt, "error", err)
		} else {
			NumThreads = val
		}
	}

	if seed := clean("RESNET_SEED"); seed != "" {
		val, err := strconv.ParseUint(seed, 10, 64)
		if err != nil {
			slog.Error("invalid setting, ignoring", "RESNET_SEED", seed, "error", err)
		} else {
			Seed = val
		}
	}
}
