package deploy

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// ServiceConfig holds configuration for OS service installation.
type ServiceConfig struct {
	BinaryPath string // Full path to the homestock binary
	DataDir    string // Data directory (~/.homestock)
	APIAddr    string // API listen address
	ConfigPath string // Optional config file passed to serve
	HomeDir    string // Defaults to the current user's home
}

// InstallResult contains the result of service installation.
type InstallResult struct {
	ServiceFile  string // Path to the installed service file
	Platform     string // "launchd" or "systemd"
	Instructions string // Human-readable instructions
}

func (c ServiceConfig) home() string {
	if c.HomeDir != "" {
		return c.HomeDir
	}
	home, _ := os.UserHomeDir()
	return home
}

func (c ServiceConfig) serveArgs() []string {
	args := []string{c.BinaryPath, "serve"}
	if c.ConfigPath != "" {
		args = append(args, "--config", c.ConfigPath)
	}
	return args
}

func (c ServiceConfig) logPath(ext string) string {
	return filepath.Join(c.DataDir, "logs", "homestock."+ext)
}

// Install installs the homestock server as a per-user OS service.
func Install(cfg ServiceConfig) (*InstallResult, error) {
	return install(runtime.GOOS, cfg)
}

// Uninstall removes the OS service.
func Uninstall(cfg ServiceConfig) (*InstallResult, error) {
	return uninstall(runtime.GOOS, cfg)
}

func install(goos string, cfg ServiceConfig) (*InstallResult, error) {
	var (
		path, platform, content, how string
	)
	switch goos {
	case "darwin":
		path, platform, content = launchdPlistPath(cfg), "launchd", GenerateLaunchdPlist(cfg)
		how = fmt.Sprintf("Start now:    launchctl load %s\n  Stop:         launchctl unload %s", path, path)
	case "linux":
		path, platform, content = systemdUnitPath(cfg), "systemd", GenerateSystemdUnit(cfg)
		how = "Enable:  systemctl --user daemon-reload && systemctl --user enable --now homestock\n" +
			"  Logs:    journalctl --user -u homestock -f"
	default:
		return nil, fmt.Errorf("unsupported platform: %s (use macOS or Linux)", goos)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create service dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(cfg.DataDir, "logs"), 0o755); err != nil {
		return nil, fmt.Errorf("create logs dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("write service file: %w", err)
	}

	return &InstallResult{
		ServiceFile:  path,
		Platform:     platform,
		Instructions: fmt.Sprintf("Service installed: %s\n\n  %s", path, how),
	}, nil
}

func uninstall(goos string, cfg ServiceConfig) (*InstallResult, error) {
	var path, platform string
	switch goos {
	case "darwin":
		path, platform = launchdPlistPath(cfg), "launchd"
	case "linux":
		path, platform = systemdUnitPath(cfg), "systemd"
	default:
		return nil, fmt.Errorf("unsupported platform: %s", goos)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("service not installed (no file at %s)", path)
	}
	if err := os.Remove(path); err != nil {
		return nil, fmt.Errorf("remove service file: %w", err)
	}
	return &InstallResult{
		ServiceFile:  path,
		Platform:     platform,
		Instructions: fmt.Sprintf("Service uninstalled: %s\n\n  Stop the running server with: homestock stop", path),
	}, nil
}

// --- launchd (macOS) ---

const launchdLabel = "io.homestock.server"

func launchdPlistPath(cfg ServiceConfig) string {
	return filepath.Join(cfg.home(), "Library", "LaunchAgents", launchdLabel+".plist")
}

// GenerateLaunchdPlist generates the plist XML for macOS launchd.
func GenerateLaunchdPlist(cfg ServiceConfig) string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
  <key>Label</key>
  <string>` + launchdLabel + `</string>
  <key>ProgramArguments</key>
  <array>
`)
	for _, arg := range cfg.serveArgs() {
		fmt.Fprintf(&sb, "    <string>%s</string>\n", arg)
	}
	fmt.Fprintf(&sb, `  </array>
  <key>EnvironmentVariables</key>
  <dict>
    <key>HOMESTOCK_DATA</key>
    <string>%s</string>
    <key>HOMESTOCK_API_ADDR</key>
    <string>%s</string>
  </dict>
  <key>RunAtLoad</key>
  <true/>
  <key>KeepAlive</key>
  <true/>
  <key>StandardOutPath</key>
  <string>%s</string>
  <key>StandardErrorPath</key>
  <string>%s</string>
  <key>WorkingDirectory</key>
  <string>%s</string>
</dict>
</plist>
`, cfg.DataDir, cfg.APIAddr, cfg.logPath("log"), cfg.logPath("err"), cfg.DataDir)
	return sb.String()
}

// --- systemd (Linux) ---

const systemdUnitName = "homestock.service"

func systemdUnitPath(cfg ServiceConfig) string {
	return filepath.Join(cfg.home(), ".config", "systemd", "user", systemdUnitName)
}

// GenerateSystemdUnit generates the systemd user unit.
func GenerateSystemdUnit(cfg ServiceConfig) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `[Unit]
Description=homestock autocomplete suggestion server
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
ExecStart=%s
Environment=HOMESTOCK_DATA=%s
Environment=HOMESTOCK_API_ADDR=%s
WorkingDirectory=%s
Restart=on-failure
RestartSec=5
StandardOutput=append:%s
StandardError=append:%s

[Install]
WantedBy=default.target
`, strings.Join(cfg.serveArgs(), " "), cfg.DataDir, cfg.APIAddr, cfg.DataDir,
		cfg.logPath("log"), cfg.logPath("err"))
	return sb.String()
}
