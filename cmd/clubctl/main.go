package main

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/jimf8th/my-skool-club-sub000/pkg/cli"
	"github.com/jimf8th/my-skool-club-sub000/pkg/config"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	env := cli.NewEnv(cfg)
	if level, err := logrus.ParseLevel(cfg.Observability.LogLevel); err == nil {
		env.Log.SetLevel(level)
	}

	if err := cli.NewRootCommand(env).Execute(os.Args[1:]); err != nil {
		env.Log.Errorf("Error: %v", err)
		os.Exit(1)
	}
}
