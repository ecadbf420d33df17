package browser

import (
	"time"

	"github.com/GrindLabs/spectrum/internal/logger"
)

// Option is a functional option for configuring an Instance.
type Option func(*Instance) error

// WithExecutablePath sets the browser executable path.
func WithExecutablePath(path string) Option {
	return func(i *Instance) error {
		i.config.ExecutablePath = path
		return nil
	}
}

// WithProfileDir sets the profile directory.
func WithProfileDir(dir string) Option {
	return func(i *Instance) error {
		i.config.ProfileDir = dir
		return nil
	}
}

// WithProxy sets the proxy server URL.
func WithProxy(proxy string) Option {
	return func(i *Instance) error {
		i.config.Proxy = proxy
		return nil
	}
}

// WithWindowSize sets the browser window size.
func WithWindowSize(width, height int) Option {
	return func(i *Instance) error {
		i.config.WindowWidth = width
		i.config.WindowHeight = height
		return nil
	}
}

// WithViewport sets the viewport size used when no window size is set.
func WithViewport(width, height int) Option {
	return func(i *Instance) error {
		i.config.ViewportWidth = width
		i.config.ViewportHeight = height
		return nil
	}
}

// WithDebuggingPort pins the remote debugging port instead of picking a
// free ephemeral one.
func WithDebuggingPort(port int) Option {
	return func(i *Instance) error {
		i.config.RemoteDebuggingPort = port
		return nil
	}
}

// WithExtraFlags appends extra launch flags.
func WithExtraFlags(flags ...string) Option {
	return func(i *Instance) error {
		i.config.ExtraFlags = append(i.config.ExtraFlags, flags...)
		return nil
	}
}

// WithStrategies adds strategies on top of the defaults. A strategy whose
// name matches an existing one replaces it in place.
func WithStrategies(strategies ...Strategy) Option {
	return func(i *Instance) error {
		i.config.Strategies = append(i.config.Strategies, strategies...)
		return nil
	}
}

// WithStrategyOverride replaces the named strategy, or removes it when
// strategy is nil.
func WithStrategyOverride(name string, strategy Strategy) Option {
	return func(i *Instance) error {
		if i.config.StrategyOverrides == nil {
			i.config.StrategyOverrides = make(map[string]Strategy)
		}
		i.config.StrategyOverrides[name] = strategy
		return nil
	}
}

// WithStartupTimeout sets how long to wait for the CDP endpoint.
func WithStartupTimeout(timeout time.Duration) Option {
	return func(i *Instance) error {
		i.config.StartupTimeout = timeout
		return nil
	}
}

// WithCommandTimeout sets the per-command round trip timeout.
func WithCommandTimeout(timeout time.Duration) Option {
	return func(i *Instance) error {
		i.config.CommandTimeout = timeout
		return nil
	}
}

// WithPageLoadTimeout sets the render readiness deadline.
func WithPageLoadTimeout(timeout time.Duration) Option {
	return func(i *Instance) error {
		i.config.PageLoadTimeout = timeout
		return nil
	}
}

// WithPollInterval sets the interval between readiness polls.
func WithPollInterval(interval time.Duration) Option {
	return func(i *Instance) error {
		i.config.PollInterval = interval
		return nil
	}
}

// WithShutdownGrace sets the terminate-to-kill grace period.
func WithShutdownGrace(grace time.Duration) Option {
	return func(i *Instance) error {
		i.config.ShutdownGrace = grace
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *logger.Logger) Option {
	return func(i *Instance) error {
		if l != nil {
			i.log = l
		}
		return nil
	}
}

// WithConfig replaces the entire configuration.
func WithConfig(config *Config) Option {
	return func(i *Instance) error {
		if config != nil {
			i.config = config
		}
		return nil
	}
}
