package main

import (
	"flag"
	"os"
	"path/filepath"

	"go.uber.org/fx"

	"github.com/matheus3301/chatd/internal/daemon"
)

func main() {
	configFlag := flag.String("config", "", "config file path (default ~/.chatd/chatd.toml)")
	flag.Parse()

	configPath := *configFlag
	if configPath == "" {
		home, _ := os.UserHomeDir()
		configPath = filepath.Join(home, ".chatd", "chatd.toml")
	}

	app := fx.New(
		daemon.Module(daemon.Params{ConfigPath: configPath}),
	)

	app.Run()
}
