// Package config loads the embedder-tunable limits the interpreter runs
// under. A microcontroller board bakes these in as constants; the TOML
// loader exists for development and for the CLI, where iterating on
// limits without recompiling is worth the extra dependency.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Config bounds the resources a single VM instance may consume. Every
// field has a microcontroller-sane default via Default.
type Config struct {
	// MaxRegisters caps the register window a single call frame may
	// request via reg_var_decl.
	MaxRegisters int `toml:"max_registers"`

	// MaxCallDepth caps the number of nested call frames.
	MaxCallDepth int `toml:"max_call_depth"`

	// HeapCells is the fixed number of object slots the heap allocator
	// manages. The heap never grows past this; allocation past it
	// triggers a collection, and if that does not free enough cells,
	// a ResourceError.
	HeapCells int `toml:"heap_cells"`

	// GCTriggerFraction is the fraction of HeapCells in use above which
	// the next allocation triggers a mark-and-sweep pass before trying
	// again.
	GCTriggerFraction float64 `toml:"gc_trigger_fraction"`

	// CancelPollOpcodes is how many dispatched opcodes pass between
	// checks of the host cancellation flag. Checking every opcode is
	// wasteful on a board with no preemption to race against; checking
	// too rarely makes cancellation sluggish.
	CancelPollOpcodes int `toml:"cancel_poll_opcodes"`

	// CancelPollInterval is an additional wall-clock throttle: even if
	// CancelPollOpcodes has elapsed, the flag is not re-read more often
	// than this.
	CancelPollInterval time.Duration `toml:"cancel_poll_interval"`
}

// Default returns the limits a reference microcontroller target (64KB
// RAM class) would hard-code.
func Default() Config {
	return Config{
		MaxRegisters:       64,
		MaxCallDepth:       256,
		HeapCells:          4096,
		GCTriggerFraction:  0.75,
		CancelPollOpcodes:  1024,
		CancelPollInterval: 2 * time.Millisecond,
	}
}

// Load reads a TOML file, applying it as overrides on top of Default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: loading %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports whether the configuration describes a usable VM.
func (c Config) Validate() error {
	if c.MaxRegisters <= 0 {
		return fmt.Errorf("config: max_registers must be positive")
	}
	if c.MaxCallDepth <= 0 {
		return fmt.Errorf("config: max_call_depth must be positive")
	}
	if c.HeapCells <= 0 {
		return fmt.Errorf("config: heap_cells must be positive")
	}
	if c.GCTriggerFraction <= 0 || c.GCTriggerFraction > 1 {
		return fmt.Errorf("config: gc_trigger_fraction must be in (0, 1]")
	}
	return nil
}
