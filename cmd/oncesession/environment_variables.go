package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
)

const EnvironmentVariablePrefix = "ONCESESSION_"

// Each flag can also be set with an env variable whose name starts with
// `ONCESESSION_`. Flags given on the command line take precedence.
func SetFlagsFromEnvVariables(fs *pflag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		if val, present := os.LookupEnv(flagToEnvVarName(f)); present {
			if setErr := fs.Set(f.Name, val); setErr != nil {
				err = fmt.Errorf("setting flag %s from environment: %w", f.Name, setErr)
			}
		}
	})
	return err
}

func flagToEnvVarName(f *pflag.Flag) string {
	return EnvironmentVariablePrefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
}
