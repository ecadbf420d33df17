package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/GrindLabs/spectrum/internal/chrome"
	"github.com/GrindLabs/spectrum/internal/logger"
	"github.com/GrindLabs/spectrum/internal/recon"
	"github.com/GrindLabs/spectrum/pkg/browser"
)

var (
	version = "1.0.0"

	// Global flags
	configFile string
	verbose    bool
	debug      bool

	// Fetch flags
	execPath       string
	profileDir     string
	proxyURL       string
	windowSize     string
	debugPort      int
	timeout        int
	startupTimeout int
	outputFile     string
	extraFlags     []string

	// Evasion flags
	noEvasion  bool
	reconCache string
	cacheTTL   int

	// Output flags
	showSummary bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "spectrum",
		Short: "spectrum - CDP Browser Driver",
		Long: `spectrum - A headless browser driver for fetching rendered pages.

Launches a local Chromium-family browser with remote debugging enabled, drives
it over the Chrome DevTools Protocol, and returns fully rendered page content.
Scans targets for WAF, CAPTCHA, and bot-management vendors before navigation
and applies evasion strategies such as the press-and-hold challenge solver.`,
		Version: version,
	}

	// Fetch command
	fetchCmd := &cobra.Command{
		Use:   "fetch [url]",
		Short: "Fetch a rendered page",
		Long:  "Fetch a URL with a headless browser and print the rendered HTML.",
		Args:  cobra.ExactArgs(1),
		RunE:  runFetch,
	}

	// Paths command
	pathsCmd := &cobra.Command{
		Use:   "paths",
		Short: "List browser executable locations",
		Long:  "List the well-known browser executable locations checked on this platform.",
		RunE:  runPaths,
	}

	// Version command
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		RunE:  runVersion,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Debug mode")

	// Fetch flags
	fetchCmd.Flags().StringVar(&execPath, "exec", "", "Browser executable path (default: auto-detect)")
	fetchCmd.Flags().StringVar(&profileDir, "profile-dir", "", "Browser profile directory (default: temporary)")
	fetchCmd.Flags().StringVar(&proxyURL, "proxy", "", "Proxy server URL")
	fetchCmd.Flags().StringVar(&windowSize, "window-size", "", "Window size as WIDTHxHEIGHT")
	fetchCmd.Flags().IntVar(&debugPort, "port", 0, "Remote debugging port (0 = auto)")
	fetchCmd.Flags().IntVarP(&timeout, "timeout", "t", 30, "Page load timeout in seconds")
	fetchCmd.Flags().IntVar(&startupTimeout, "startup-timeout", 20, "Browser startup timeout in seconds")
	fetchCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	fetchCmd.Flags().StringArrayVar(&extraFlags, "extra-flag", nil, "Extra browser launch flag (repeatable)")

	// Evasion flags
	fetchCmd.Flags().BoolVar(&noEvasion, "no-evasion", false, "Disable detection and evasion strategies")
	fetchCmd.Flags().StringVar(&reconCache, "recon-cache", "", "Persistent detection cache file")
	fetchCmd.Flags().IntVar(&cacheTTL, "cache-ttl", 24, "Detection cache TTL in hours")

	// Output flags
	fetchCmd.Flags().BoolVar(&showSummary, "summary", false, "Print a JSON page summary instead of raw HTML")

	// Add commands
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(pathsCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runFetch(cmd *cobra.Command, args []string) error {
	target := args[0]

	switch {
	case debug:
		logger.Global().SetLevel(logger.DebugLevel)
	case verbose:
		logger.Global().SetLevel(logger.InfoLevel)
	default:
		logger.Global().SetLevel(logger.WarnLevel)
	}

	// Load config file if provided
	config := browser.DefaultConfig()
	if configFile != "" {
		fileConfig, err := browser.LoadFromFile(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config file: %w", err)
		}
		config = fileConfig
	}

	// Override with command-line flags if provided
	if cmd.Flags().Changed("exec") {
		config.ExecutablePath = execPath
	}
	if cmd.Flags().Changed("profile-dir") {
		config.ProfileDir = profileDir
	}
	if cmd.Flags().Changed("proxy") {
		config.Proxy = proxyURL
	}
	if cmd.Flags().Changed("window-size") {
		width, height, err := parseWindowSize(windowSize)
		if err != nil {
			return err
		}
		config.WindowWidth = width
		config.WindowHeight = height
	}
	if cmd.Flags().Changed("port") {
		config.RemoteDebuggingPort = debugPort
	}
	if cmd.Flags().Changed("timeout") {
		config.PageLoadTimeout = time.Duration(timeout) * time.Second
	}
	if cmd.Flags().Changed("startup-timeout") {
		config.StartupTimeout = time.Duration(startupTimeout) * time.Second
	}
	config.ExtraFlags = append(config.ExtraFlags, extraFlags...)

	opts := []browser.Option{browser.WithConfig(config)}
	if noEvasion {
		opts = append(opts,
			browser.WithStrategyOverride("recon", nil),
			browser.WithStrategyOverride("perimeterx", nil),
		)
	} else if reconCache != "" {
		store, err := recon.OpenStore(reconCache, time.Duration(cacheTTL)*time.Hour)
		if err != nil {
			return fmt.Errorf("failed to open detection cache: %w", err)
		}
		defer store.Close()
		opts = append(opts, browser.WithStrategyOverride("recon",
			browser.NewReconStrategy(browser.WithReconStore(store))))
	}

	manager := browser.NewManager()
	defer func() {
		if err := manager.CloseAll(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to close browser: %v\n", err)
		}
	}()

	// Setup signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Fprintf(os.Stderr, "\nReceived interrupt signal, closing browser...\n")
		cancel()
	}()

	// Print banner only when the page content is not going to stdout
	showReport := outputFile != ""
	if showReport {
		printBanner(target, config)
	}

	instance, err := manager.Launch(opts...)
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	// Fetch the page
	startTime := time.Now()
	var content string
	_, err = instance.Goto(ctx, target)
	if err == nil {
		content, err = instance.Content(ctx)
	}
	duration := time.Since(startTime)

	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("fetch failed: %w", err)
	}
	if ctx.Err() != nil {
		fmt.Fprintf(os.Stderr, "Fetch cancelled\n")
		return nil
	}

	if showSummary {
		summary, err := browser.Summarize(content, target)
		if err != nil {
			return fmt.Errorf("failed to summarize page: %w", err)
		}
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode summary: %w", err)
		}
		content = string(data)
	}

	if err := writeOutput(outputFile, content); err != nil {
		return err
	}

	if showReport {
		printSummary(instance, len(content), duration)
	}

	return nil
}

func runPaths(cmd *cobra.Command, args []string) error {
	candidates := chrome.DefaultExecutablePaths()
	if len(candidates) == 0 {
		fmt.Println("No known browser locations for this platform")
		return nil
	}

	fmt.Println("Browser executable candidates:")
	found := false
	for _, path := range candidates {
		marker := " "
		if _, err := os.Stat(path); err == nil {
			marker = "*"
			found = true
		}
		fmt.Printf("  [%s] %s\n", marker, path)
	}
	if !found {
		fmt.Println()
		fmt.Println("No browser found. Install Chrome or Chromium, or pass --exec to fetch.")
	}

	return nil
}

func runVersion(cmd *cobra.Command, args []string) error {
	fmt.Printf("spectrum v%s\n", version)
	return nil
}

func parseWindowSize(value string) (int, int, error) {
	w, h, ok := strings.Cut(value, "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid window size %q (expected WIDTHxHEIGHT)", value)
	}
	width, err := strconv.Atoi(strings.TrimSpace(w))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid window width %q", w)
	}
	height, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid window height %q", h)
	}
	return width, height, nil
}

func writeOutput(path, content string) error {
	if path == "" {
		fmt.Println(content)
		return nil
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func printBanner(target string, config *browser.Config) {
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                        spectrum v1.0                         ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")
	fmt.Println()
	executable := config.ExecutablePath
	if executable == "" {
		executable = "auto-detect"
	}
	fmt.Printf("Target:       %s\n", target)
	fmt.Printf("Executable:   %s\n", executable)
	if config.Proxy != "" {
		fmt.Printf("Proxy:        %s\n", config.Proxy)
	}
	fmt.Printf("Page Timeout: %v\n", config.PageLoadTimeout)
	fmt.Println()
	fmt.Println("Fetching...")
	fmt.Println()
}

func printSummary(instance *browser.Instance, contentSize int, duration time.Duration) {
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                        Fetch Summary                         ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("Duration:     %v\n", duration.Round(time.Millisecond))
	fmt.Printf("Final URL:    %s\n", instance.CurrentURL())
	fmt.Printf("Target ID:    %s\n", instance.TargetID())
	fmt.Printf("Debug Port:   %d\n", instance.Port())
	fmt.Printf("Content Size: %d bytes\n", contentSize)

	snap := instance.MetricsSnapshot()
	if len(snap.Detections) > 0 {
		fmt.Printf("Detections:   waf=%d captcha=%d tech=%d\n",
			snap.Detections["waf"], snap.Detections["captcha"], snap.Detections["tech"])
	}
	if snap.GesturesRun > 0 {
		fmt.Printf("Gestures:     %d\n", snap.GesturesRun)
	}
	fmt.Println()
}
