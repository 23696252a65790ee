package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/opal-lang/rash"
	"github.com/opal-lang/rash/runtime/emitter"
	"github.com/opal-lang/rash/runtime/validation"
)

func main() {
	var (
		output   string
		dialect  string
		verify   string
		bare     bool
		debug    bool
		showInfo bool
	)

	rootCmd := &cobra.Command{
		Use:           "rash [file]",
		Short:         "Transpile a restricted Rust program into a POSIX shell script",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rash.ConfigFromEnv()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("dialect") {
				if cfg.Dialect, err = emitter.ParseDialect(dialect); err != nil {
					return err
				}
			}
			if flags.Changed("verify") {
				if cfg.Verify, err = validation.ParseLevel(verify); err != nil {
					return err
				}
			}
			if flags.Changed("bare-literals") {
				cfg.BareSafeLiterals = bare
			}
			if debug {
				cfg.Logger = rash.DebugLogger(os.Stderr)
			}

			file := ""
			if len(args) == 1 {
				file = args[0]
			}
			return transpile(file, output, cfg, showInfo)
		},
	}

	rootCmd.Flags().StringVarP(&output, "output", "o", "-", "Write the script to this file")
	rootCmd.Flags().StringVar(&dialect, "dialect", "posix", "Target shell: posix, bash, or dash")
	rootCmd.Flags().StringVar(&verify, "verify", "basic", "Verification level: none, basic, or strict")
	rootCmd.Flags().BoolVar(&bare, "bare-literals", false, "Leave safe literals unquoted")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "Log pipeline stages to stderr")
	rootCmd.Flags().BoolVar(&showInfo, "info", false, "Print effects and digests to stderr")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func transpile(file, output string, cfg rash.Config, showInfo bool) error {
	reader, closeFunc, err := getInputReader(file)
	if err != nil {
		return err
	}
	defer func() { _ = closeFunc() }()

	source, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("error reading input: %w", err)
	}

	res, err := rash.Compile(string(source), cfg)
	if err != nil {
		return err
	}
	if showInfo {
		fmt.Fprintf(os.Stderr, "effects: %s\nscript:  %s\nir:      %s\n", res.Effects, res.Digest, res.IRHash)
	}

	if output == "-" {
		_, err = io.WriteString(os.Stdout, res.Script)
		return err
	}
	return os.WriteFile(output, []byte(res.Script), 0o755)
}

// exitCode is 2 for a program the pipeline rejects, 3 for an internal
// error, and 1 for anything else (I/O, bad flags).
func exitCode(err error) int {
	var internal *rash.InternalError
	if errors.As(err, &internal) {
		return 3
	}
	var stageErr *rash.Error
	if errors.As(err, &stageErr) {
		return 2
	}
	return 1
}

// getInputReader handles the 3 modes of input:
// 1. Explicit stdin with -
// 2. Piped input (auto-detected when no file is given)
// 3. File input
func getInputReader(file string) (io.Reader, func() error, error) {
	if file == "-" {
		return os.Stdin, func() error { return nil }, nil
	}

	if file == "" {
		if !hasPipedInput() {
			return nil, nil, errors.New("no input file given and nothing piped to stdin")
		}
		return os.Stdin, func() error { return nil }, nil
	}

	f, err := os.Open(file)
	if err != nil {
		return nil, nil, fmt.Errorf("error opening file %s: %w", file, err)
	}

	closeFunc := func() error {
		return f.Close()
	}

	return f, closeFunc, nil
}

// hasPipedInput detects if there's data piped to stdin
func hasPipedInput() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}

	// Check if stdin is not a character device (i.e., it's piped)
	// Note: We don't check Size() > 0 because pipes may not report size correctly
	return (stat.Mode() & os.ModeCharDevice) == 0
}
