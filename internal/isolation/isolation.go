// Package isolation tracks which remote hosts an operator has isolated and,
// in firewall mode, applies the block via iptables.
package isolation

import (
	"fmt"
	"os/exec"
	"time"

	"novawatch/internal/fsjson"
	"novawatch/internal/logger"
)

// Operating modes. Sim records state only; firewall_linux additionally
// manages iptables rules.
const (
	ModeSim           = "sim"
	ModeFirewallLinux = "firewall_linux"
)

// Record is the persisted isolation entry for one host.
type Record struct {
	Status string    `json:"status"`
	Reason string    `json:"reason,omitempty"`
	TS     time.Time `json:"ts"`
	Mode   string    `json:"mode"`
}

// Controller persists isolation decisions keyed by IP.
type Controller struct {
	statePath string
	mode      string
}

// NewController creates a controller. An empty or unknown mode falls back to
// sim.
func NewController(statePath, mode string) (*Controller, error) {
	if statePath == "" {
		return nil, fmt.Errorf("isolation state path is required")
	}
	if mode != ModeFirewallLinux {
		mode = ModeSim
	}
	return &Controller{statePath: statePath, mode: mode}, nil
}

// Isolate marks ip as isolated and returns a human-readable status message.
func (c *Controller) Isolate(ip, reason string) (string, error) {
	if ip == "" {
		return "", fmt.Errorf("ip is required")
	}

	state := c.readState()
	state[ip] = Record{
		Status: "isolated",
		Reason: reason,
		TS:     time.Now().UTC(),
		Mode:   c.mode,
	}
	if err := fsjson.Save(c.statePath, state); err != nil {
		return "", fmt.Errorf("persist isolation state: %w", err)
	}

	if c.mode == ModeFirewallLinux {
		c.applyFirewall(ip, true)
		return fmt.Sprintf("%s isolated via iptables", ip), nil
	}
	return fmt.Sprintf("(sim) %s marked isolated", ip), nil
}

// Release clears the isolation mark for ip.
func (c *Controller) Release(ip string) (string, error) {
	if ip == "" {
		return "", fmt.Errorf("ip is required")
	}

	state := c.readState()
	delete(state, ip)
	if err := fsjson.Save(c.statePath, state); err != nil {
		return "", fmt.Errorf("persist isolation state: %w", err)
	}

	if c.mode == ModeFirewallLinux {
		c.applyFirewall(ip, false)
		return fmt.Sprintf("%s released via iptables", ip), nil
	}
	return fmt.Sprintf("(sim) %s released", ip), nil
}

// ReadState returns the persisted isolation map. Missing or corrupt state is
// an empty map.
func (c *Controller) ReadState() map[string]Record {
	return c.readState()
}

func (c *Controller) readState() map[string]Record {
	state := map[string]Record{}
	if err := fsjson.Load(c.statePath, &state); err != nil {
		if !fsjson.IsNotExist(err) {
			logger.Warnf("Isolation state %s unreadable, starting empty: %v", c.statePath, err)
		}
		return map[string]Record{}
	}
	if state == nil {
		return map[string]Record{}
	}
	return state
}

// applyFirewall inserts or removes the drop rules for ip. Rule failures are
// logged, not fatal: the persisted state is the source of truth and the rules
// can be reconciled manually.
func (c *Controller) applyFirewall(ip string, block bool) {
	action := "-I"
	if !block {
		action = "-D"
	}
	for _, chain := range []string{"INPUT", "OUTPUT"} {
		var dir string
		if chain == "INPUT" {
			dir = "-s"
		} else {
			dir = "-d"
		}
		cmd := exec.Command("iptables", action, chain, dir, ip, "-j", "DROP")
		if out, err := cmd.CombinedOutput(); err != nil {
			logger.Errorf("iptables %s %s %s failed: %v (%s)", action, chain, ip, err, out)
		}
	}
}
