package main

import (
	"fmt"
	"io/ioutil"
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vertexdlt/vertexvm/vm"
)

// exampleResolver satisfies a module's imports with a small set of
// logging/debug host functions. It exists to exercise the VM's host call
// path end to end; a real embedder supplies its own Resolver.
type exampleResolver struct{}

func (r *exampleResolver) GetFunction(module, name string) vm.HostFunction {
	if module != "env" {
		return nil
	}
	switch name {
	case "log_i32":
		return func(v *vm.VM, args ...uint64) uint64 {
			log.Infof("log_i32: %d", int32(args[0]))
			return 0
		}
	case "abort":
		return func(v *vm.VM, args ...uint64) uint64 {
			log.Fatalf("module called abort(%d, %d)", int32(args[0]), int32(args[1]))
			return 0
		}
	default:
		return nil
	}
}

func newRunCmd() *cobra.Command {
	var gasLimit uint64

	cmd := &cobra.Command{
		Use:   "run <module.wasm> <function> [args...]",
		Short: "Decode and execute a WebAssembly module function",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, argv []string) error {
			path, fn, rawArgs := argv[0], argv[1], argv[2:]

			code, err := ioutil.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read module: %w", err)
			}

			m, err := vm.NewVM(code, &exampleResolver{})
			if err != nil {
				return fmt.Errorf("decode module: %w", err)
			}
			if gasLimit > 0 {
				m.SetGasPolicy(&vm.SimpleGasPolicy{})
				m.SetGasLimit(gasLimit)
			}

			fidx, ok := m.GetFunctionIndex(fn)
			if !ok {
				return fmt.Errorf("function %q not exported", fn)
			}

			args := make([]uint64, len(rawArgs))
			for i, a := range rawArgs {
				v, err := strconv.ParseInt(a, 10, 64)
				if err != nil {
					return fmt.Errorf("argument %d (%q): %w", i, a, err)
				}
				args[i] = uint64(v)
			}

			ret, err := m.Invoke(fidx, args...)
			if err != nil {
				return fmt.Errorf("invoke %s: %w", fn, err)
			}
			log.WithField("gas_used", m.GasUsed()).Infof("%s returned %d", fn, ret)
			fmt.Println(ret)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&gasLimit, "gas-limit", 0, "abort execution once this much gas is consumed (0 = unlimited)")
	return cmd
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	root := &cobra.Command{
		Use:   "vertexvm",
		Short: "A standalone interpreter for WebAssembly 1.0 modules",
	}
	root.AddCommand(newRunCmd())

	if err := root.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
