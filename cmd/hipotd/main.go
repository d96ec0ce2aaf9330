// Command hipotd runs the station daemon without the CLI wrapper, for
// service managers. HIPOT_CONFIG selects the configuration file.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"strings"

	"hipot/internal/config"
	"hipot/internal/daemonrun"
)

const configEnv = "HIPOT_CONFIG"

func main() {
	path := configPath(os.LookupEnv)
	cfg, resolved, _, err := config.Load(path)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	err = daemonrun.Run(context.Background(), cfg, daemonrun.Options{ConfigPath: resolved})
	var exitErr *daemonrun.ExitError
	switch {
	case errors.As(err, &exitErr):
		os.Exit(exitErr.Code)
	case err != nil:
		log.Fatalf("hipotd: %v", err)
	}
}

func configPath(lookup func(string) (string, bool)) string {
	value, ok := lookup(configEnv)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}
