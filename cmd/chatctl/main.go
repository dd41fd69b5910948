package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/matheus3301/chatd/internal/auth"
	"github.com/matheus3301/chatd/internal/config"
)

func main() {
	configFlag := flag.String("config", "", "config file path (default ~/.chatd/chatd.toml)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := loadConfig(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	switch args[0] {
	case "token":
		cmdToken(cfg, args[1:], *jsonFlag)
	case "health":
		cmdHealth(cfg, *jsonFlag)
	case "init":
		cmdInit(*configFlag, cfg)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: chatctl [--config <path>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  token <user-id> [email] [ttl]   Mint a bearer token for a user")
	fmt.Fprintln(os.Stderr, "  health                          Check daemon health")
	fmt.Fprintln(os.Stderr, "  init                            Write a default config file")
}

func configPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chatd", "chatd.toml")
}

func loadConfig(flagValue string) (*config.Config, error) {
	return config.Load(configPath(flagValue))
}

func cmdToken(cfg *config.Config, args []string, jsonOut bool) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: chatctl token <user-id> [email] [ttl]")
		os.Exit(1)
	}
	if cfg.AuthSecret == "" {
		fmt.Fprintln(os.Stderr, "error: auth_secret not set in config")
		os.Exit(1)
	}

	userID := args[0]
	email := ""
	if len(args) > 1 {
		email = args[1]
	}
	ttl := 24 * time.Hour
	if len(args) > 2 {
		parsed, err := time.ParseDuration(args[2])
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: invalid ttl %q: %v\n", args[2], err)
			os.Exit(1)
		}
		ttl = parsed
	}

	token, err := auth.NewVerifier(cfg.AuthSecret).Mint(userID, email, ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(map[string]string{"token": token, "userId": userID})
		return
	}
	fmt.Println(token)
}

func cmdHealth(cfg *config.Config, jsonOut bool) {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get("http://" + cfg.ListenAddr + "/healthz")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot reach daemon at %s: %v\n", cfg.ListenAddr, err)
		os.Exit(1)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "daemon unhealthy: %s\n", body)
		os.Exit(1)
	}

	if jsonOut {
		os.Stdout.Write(body)
		fmt.Println()
		return
	}
	var health struct {
		Status   string `json:"status"`
		Users    int    `json:"users"`
		Chats    int    `json:"chats"`
		Messages int    `json:"messages"`
	}
	if err := json.Unmarshal(body, &health); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Status:   %s\n", health.Status)
	fmt.Printf("Users:    %d\n", health.Users)
	fmt.Printf("Chats:    %d\n", health.Chats)
	fmt.Printf("Messages: %d\n", health.Messages)
}

func cmdInit(flagValue string, cfg *config.Config) {
	path := configPath(flagValue)
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(os.Stderr, "error: config already exists at %s\n", path)
		os.Exit(1)
	}
	if err := config.Save(path, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s\n", path)
	fmt.Println("Set auth_secret before starting chatd.")
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
