// Command emberjs runs and inspects precompiled bytecode programs. It
// has no source-level front end of its own — spec.md §1 scopes the
// parser/serializer that would produce a bytecode.Program out of this
// core, so the CLI's input is always an already-assembled CBOR program,
// the same wire format bytecode.Encode/Decode round-trip in tests.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"emberjs/pkg/bytecode"
	"emberjs/pkg/config"
	"emberjs/pkg/vm"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "emberjs",
		Usage: "run and inspect precompiled ECMAScript 5.1 subset bytecode programs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to a TOML file overriding the microcontroller-default resource limits",
			},
		},
		Commands: []*cli.Command{
			runCommand,
			dumpCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "emberjs:", err)
		os.Exit(1)
	}
}

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "load a CBOR-encoded program and execute it to completion",
	ArgsUsage: "<program.cbor>",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "bytecode", Usage: "trace every dispatched opcode via slog"},
		&cli.BoolFlag{Name: "gc-stats", Usage: "accepted but has no effect: no garbage collection summary is logged"},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.Exit("usage: emberjs run [flags] <program.cbor>", 64)
		}
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		prog, err := loadProgram(c.Args().First())
		if err != nil {
			return err
		}

		logger := slog.Default()
		hooks := vm.HostHooks{}
		if c.Bool("bytecode") {
			hooks.Trace = func(pc int, op bytecode.Op) {
				logger.Debug("dispatch", "pc", pc, "op", op.String())
			}
		}

		machine, err := vm.New(cfg, hooks, logger)
		if err != nil {
			return cli.Exit(err.Error(), 70)
		}
		if err := machine.Load(prog); err != nil {
			return cli.Exit(err.Error(), 70)
		}
		ok, err := machine.Run(context.Background())
		if err != nil {
			return cli.Exit(err.Error(), 70)
		}
		if !ok {
			os.Exit(1)
		}
		return nil
	},
}

var dumpCommand = &cli.Command{
	Name:      "dump",
	Usage:     "decode a CBOR-encoded program and print its instructions",
	ArgsUsage: "<program.cbor>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.Exit("usage: emberjs dump <program.cbor>", 64)
		}
		prog, err := loadProgram(c.Args().First())
		if err != nil {
			return err
		}
		dumpProgram(prog)
		return nil
	},
}

func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return config.Config{}, cli.Exit(err.Error(), 64)
	}
	return cfg, nil
}

func loadProgram(path string) (*bytecode.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("reading %s: %v", path, err), 66)
	}
	prog, err := bytecode.Decode(data)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("decoding %s: %v", path, err), 65)
	}
	return prog, nil
}

// dumpProgram prints one line per instruction: its position, mnemonic,
// and raw operand bytes. It does not attempt to resolve literal or
// jump-target operands into symbolic form; that would need the same
// disassembly tables the interpreter's dispatch loop already owns, and
// duplicating them here for a debug tool is not worth the drift risk.
func dumpProgram(prog *bytecode.Program) {
	pos := 0
	for pos < len(prog.Code) {
		op, err := prog.OpAt(pos)
		if err != nil {
			fmt.Printf("%04d  <error: %v>\n", pos, err)
			return
		}
		size := op.Size()
		operands := prog.Code[pos+1 : min(pos+size, len(prog.Code))]
		fmt.Printf("%04d  %-16s % x\n", pos, op.String(), operands)
		pos += size
	}
	fmt.Printf("\n%d literal(s)\n", len(prog.Literals))
	for i, lit := range prog.Literals {
		fmt.Printf("  [%d] %s\n", i, describeLiteral(lit))
	}
	if len(prog.ExceptionHandlers) > 0 {
		fmt.Printf("\n%d exception handler(s)\n", len(prog.ExceptionHandlers))
	}
}

func describeLiteral(lit bytecode.Literal) string {
	switch lit.Kind {
	case bytecode.LitNumber:
		return fmt.Sprintf("number %v", lit.Num)
	case bytecode.LitString:
		return fmt.Sprintf("string %q", lit.Str)
	case bytecode.LitFunction:
		if lit.Func != nil {
			return fmt.Sprintf("function %q @%d", lit.Func.Name, lit.Func.Start)
		}
		return "function <nil>"
	default:
		return "unknown"
	}
}
