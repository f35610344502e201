package session

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/getsentry/probetools/internal/probegraph"
)

type Config struct {
	InitialSlots int `env:"PROBE_INITIAL_SLOTS" env-default:"1427" env-description:"initial size of the edge table"`
	MaxEdges     int `env:"PROBE_MAX_EDGES" env-default:"65536" env-description:"distinct edges a session records before routing to the OOM edge"`
	// MaxSnapshotEdges bounds snapshots, 0 means unlimited.
	MaxSnapshotEdges int `env:"PROBE_MAX_SNAPSHOT_EDGES" env-default:"0" env-description:"largest snapshot that can be built"`
}

func DefaultConfig() Config {
	return Config{
		InitialSlots: probegraph.DefaultInitialSlots,
		MaxEdges:     probegraph.DefaultMaxEdges,
	}
}

// LoadConfig reads the session configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("session: can't read config: %w", err)
	}
	return cfg, nil
}

func (c Config) graphOptions() probegraph.Options {
	return probegraph.Options{
		InitialSlots: c.InitialSlots,
		MaxEdges:     c.MaxEdges,
	}
}
