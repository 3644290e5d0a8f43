package config

import (
	"fmt"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/learnvulkan/internal/vkerr"
)

// ErrHelp is returned by ParseArgs after the usage text has been written.
var ErrHelp = errors.New("help requested")

// ParseArgs applies command line switches. A --config switch is applied first so the other
// switches override the file regardless of their position.
func ParseArgs(args []string, usage io.Writer) (Config, error) {
	cfg := Default()

	for i := 0; i < len(args); i++ {
		if args[i] != "--config" {
			continue
		}
		if i+1 >= len(args) {
			return cfg, errors.New("--config needs a path")
		}

		var err error
		cfg, err = Load(args[i+1])
		if err != nil {
			return cfg, err
		}
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch arg {
		case "--config":
			i++
		case "--no-validation":
			cfg.Validation = false
		case "--panic-on-error":
			cfg.ErrorPolicy = vkerr.Panic.String()
		case "--untextured":
			cfg.Textured = false
		case "--help", "-h":
			fmt.Fprintln(usage, "\nOptions")
			fmt.Fprintln(usage, "\t--config <file>")
			fmt.Fprintln(usage, "\t\tLoad settings from a TOML file")
			fmt.Fprintln(usage, "\t--no-validation")
			fmt.Fprintln(usage, "\t\tDo not enable the Khronos validation layer")
			fmt.Fprintln(usage, "\t--panic-on-error")
			fmt.Fprintln(usage, "\t\tPanic with a stack trace at the first failed Vulkan call")
			fmt.Fprintln(usage, "\t--untextured")
			fmt.Fprintln(usage, "\t\tDraw vertex colors without a texture or sampler")
			return cfg, ErrHelp
		default:
			fmt.Fprintf(usage, "\nUnrecognized option: %s\n", arg)
			fmt.Fprintln(usage, "\nUse --help or -h for option list.")
			return cfg, errors.Newf("unrecognized option %s", arg)
		}
	}

	cfg.matchShaders()
	return cfg, cfg.Validate()
}
