// Package firewall applies IP blocks at the host packet filter.
package firewall

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// ErrCommandFailed wraps any failure of the underlying firewall command.
var ErrCommandFailed = errors.New("firewall command failed")

// Firewall drops or restores inbound traffic from an address.
type Firewall interface {
	Block(ctx context.Context, ip string) error
	Unblock(ctx context.Context, ip string) error
}

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands through os/exec without a shell.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Iptables manages INPUT chain DROP rules.
type Iptables struct {
	sudo bool
	run  Runner
	log  *logrus.Entry
}

// NewIptables creates an iptables firewall. With sudo set, commands are
// prefixed with sudo. run defaults to ExecRunner.
func NewIptables(sudo bool, run Runner, log *logrus.Logger) *Iptables {
	if run == nil {
		run = ExecRunner
	}
	return &Iptables{
		sudo: sudo,
		run:  run,
		log:  log.WithField("component", "firewall"),
	}
}

// Block appends "-A INPUT -s <ip> -j DROP".
func (f *Iptables) Block(ctx context.Context, ip string) error {
	return f.exec(ctx, "-A", ip)
}

// Unblock deletes the matching DROP rule.
func (f *Iptables) Unblock(ctx context.Context, ip string) error {
	return f.exec(ctx, "-D", ip)
}

func (f *Iptables) exec(ctx context.Context, op, ip string) error {
	name := "iptables"
	args := []string{op, "INPUT", "-s", ip, "-j", "DROP"}
	if f.sudo {
		args = append([]string{name}, args...)
		name = "sudo"
	}

	cmd := name + " " + strings.Join(args, " ")
	f.log.WithField("command", cmd).Info("Executing command")

	out, err := f.run(ctx, name, args...)
	if err != nil {
		f.log.WithError(err).WithField("output", strings.TrimSpace(string(out))).Error("Command execution error")
		return fmt.Errorf("%w: %s: %v", ErrCommandFailed, cmd, err)
	}
	return nil
}

// Simulated only logs what it would do. Used outside production.
type Simulated struct {
	log *logrus.Entry
}

// NewSimulated creates a logging-only firewall.
func NewSimulated(log *logrus.Logger) *Simulated {
	return &Simulated{log: log.WithField("component", "firewall")}
}

func (f *Simulated) Block(_ context.Context, ip string) error {
	f.log.WithField("ip", ip).Info("[SIMULATION] Blocked IP using iptables")
	return nil
}

func (f *Simulated) Unblock(_ context.Context, ip string) error {
	f.log.WithField("ip", ip).Info("[SIMULATION] Unblocked IP using iptables")
	return nil
}
