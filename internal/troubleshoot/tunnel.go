package troubleshoot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/sergeyitaly/raspi-doctor/internal/telemetry"
)

// DefaultTunnelConfigPath is where cloudflared keeps its tunnel config.
const DefaultTunnelConfigPath = "/home/pi/.cloudflared/config.yml"

// tunnelConfigTemplate is written when the existing config cannot be parsed.
// The operator still has to fill in the tunnel ID; the point is to get the
// service past the YAML parse error with a structurally valid file.
const tunnelConfigTemplate = `# Cloudflare Tunnel configuration
# Replace with your actual tunnel ID and credentials path
tunnel: YOUR_TUNNEL_ID_HERE
credentials-file: /home/pi/.cloudflared/YOUR_TUNNEL_ID_HERE.json

ingress:
  - hostname: your-domain.example.com
    service: http://localhost:3000
  - service: http-status:404
`

// ValidateTunnelConfig reports whether the file at path parses as YAML.
// A missing file is reported as invalid with its read error.
func ValidateTunnelConfig(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read tunnel config: %w", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return fmt.Errorf("parse tunnel config: %w", err)
	}
	return nil
}

// RepairTunnelConfig backs up and replaces a corrupt tunnel config with a
// valid template, then restarts the service. A config that already parses is
// left untouched. Returns a SUCCESS:/ERROR: text result, never an error.
func RepairTunnelConfig(ctx context.Context, path string, runner telemetry.Runner) string {
	if err := ValidateTunnelConfig(path); err == nil {
		return "SUCCESS: tunnel config is valid YAML, no repair needed"
	}

	if content, err := os.ReadFile(path); err == nil {
		if err := os.WriteFile(path+".backup", content, 0o600); err != nil {
			return fmt.Sprintf("ERROR: failed to back up tunnel config: %v", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Sprintf("ERROR: failed to create tunnel config dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(tunnelConfigTemplate), 0o600); err != nil {
		return fmt.Sprintf("ERROR: failed to write tunnel config template: %v", err)
	}

	if _, err := runner.Run(ctx, "systemctl restart cloudflared.service", 0); err != nil {
		return fmt.Sprintf("ERROR: wrote config template but restart failed: %v", err)
	}
	return "SUCCESS: replaced corrupt tunnel config with template and restarted service"
}
