package browser

import (
	"context"
	"math/rand"
	"time"

	"github.com/GrindLabs/spectrum/internal/cdp"
	"github.com/GrindLabs/spectrum/internal/logger"
)

// buttonProbeScript scans interactive elements for visible "press and
// hold" text and returns the viewport-space center of the first visible
// match, or null.
const buttonProbeScript = `
(() => {
    const matcher = /press\s*(?:&|and)?\s*hold/i;
    const selectors = [
        "button",
        "[role='button']",
        "div",
        "span",
        "a",
    ];
    const candidates = document.querySelectorAll(selectors.join(","));
    for (const node of candidates) {
        const text = (node.innerText || node.textContent || "").trim();
        if (!text || !matcher.test(text)) {
            continue;
        }
        const rect = node.getBoundingClientRect();
        if (!rect || rect.width === 0 || rect.height === 0) {
            continue;
        }
        return {
            x: rect.left + rect.width / 2,
            y: rect.top + rect.height / 2,
        };
    }
    return null;
})()
`

// PerimeterXStrategy defeats the PerimeterX press-and-hold challenge: it
// polls the page for the challenge button, walks the pointer to it along
// a human-like eased path, and holds the button down. A page without the
// button is left untouched.
type PerimeterXStrategy struct {
	buttonTimeout      time.Duration
	buttonPollInterval time.Duration
	holdDuration       time.Duration
	moveMinDuration    time.Duration
	moveMaxDuration    time.Duration

	log *logger.Logger
}

// NewPerimeterXStrategy builds the strategy with its stock challenge
// timings.
func NewPerimeterXStrategy() *PerimeterXStrategy {
	return &PerimeterXStrategy{
		buttonTimeout:      12 * time.Second,
		buttonPollInterval: 400 * time.Millisecond,
		holdDuration:       4 * time.Second,
		moveMinDuration:    600 * time.Millisecond,
		moveMaxDuration:    1200 * time.Millisecond,
		log:                logger.Global().WithComponent("perimeterx"),
	}
}

// Name implements Strategy.
func (p *PerimeterXStrategy) Name() string { return "perimeterx" }

// BeforeNavigation implements Strategy with no pre-navigation work.
func (p *PerimeterXStrategy) BeforeNavigation(ctx context.Context, nav *NavigationContext) error {
	return nil
}

// AfterNavigation runs the press-and-hold gesture against the current
// target. Without a target or a known debugging port there is nothing to
// act on.
func (p *PerimeterXStrategy) AfterNavigation(ctx context.Context, nav *NavigationContext) error {
	if nav.TargetID == "" {
		return nil
	}
	if nav.Config == nil || nav.Config.RemoteDebuggingPort == 0 {
		return nil
	}

	wsURL, err := cdp.TargetWebSocketURL(ctx, Endpoint(nav.Config.RemoteDebuggingPort), nav.TargetID)
	if err != nil {
		return err
	}

	performed, err := p.pressAndHold(ctx, wsURL, nav.Config.CommandTimeout)
	if err != nil {
		return err
	}
	if performed && nav.Metrics != nil {
		nav.Metrics.RecordGesture()
	}
	return nil
}

// pressAndHold performs the whole gesture on one socket so command ids
// stay monotonic across the conversation. Reports whether the gesture
// actually ran.
func (p *PerimeterXStrategy) pressAndHold(ctx context.Context, wsURL string, commandTimeout time.Duration) (bool, error) {
	client, err := cdp.Dial(ctx, wsURL, cdp.WithTimeout(commandTimeout), cdp.WithLogger(p.log))
	if err != nil {
		return false, err
	}
	defer client.Close()

	location, found, err := p.waitForButton(ctx, client)
	if err != nil {
		return false, err
	}
	if !found {
		p.log.Debug("press-and-hold button did not appear")
		return false, nil
	}

	if err := p.moveMouseHumanlike(ctx, client, location.x, location.y); err != nil {
		return false, err
	}
	if err := p.dispatchMouseEvent(ctx, client, "mousePressed", location.x, location.y, 1); err != nil {
		return false, err
	}
	if err := sleepContext(ctx, p.holdDuration); err != nil {
		return false, err
	}
	if err := p.dispatchMouseEvent(ctx, client, "mouseReleased", location.x, location.y, 0); err != nil {
		return false, err
	}
	return true, nil
}

type buttonLocation struct {
	x float64
	y float64
}

// waitForButton polls for the challenge button until it appears or the
// button timeout elapses. Not finding it is not an error.
func (p *PerimeterXStrategy) waitForButton(ctx context.Context, client *cdp.Client) (buttonLocation, bool, error) {
	deadline := time.Now().Add(p.buttonTimeout)

	for time.Now().Before(deadline) {
		location, found, err := p.evaluateForButton(ctx, client)
		if err != nil {
			return buttonLocation{}, false, err
		}
		if found {
			return location, true, nil
		}

		if err := sleepContext(ctx, p.buttonPollInterval); err != nil {
			return buttonLocation{}, false, err
		}
	}

	return buttonLocation{}, false, nil
}

func (p *PerimeterXStrategy) evaluateForButton(ctx context.Context, client *cdp.Client) (buttonLocation, bool, error) {
	result, err := client.Call(ctx, "Runtime.evaluate", map[string]any{
		"expression":    buttonProbeScript,
		"returnByValue": true,
	})
	if err != nil {
		return buttonLocation{}, false, err
	}

	if !result.Has("result.value.x") {
		return buttonLocation{}, false, nil
	}

	return buttonLocation{
		x: result.Get("result.value.x").Num(),
		y: result.Get("result.value.y").Num(),
	}, true, nil
}

// moveMouseHumanlike walks the pointer from a randomized off-target
// start to the button center: smoothstep easing over a randomized step
// count and duration, with a little jitter per step.
func (p *PerimeterXStrategy) moveMouseHumanlike(ctx context.Context, client *cdp.Client, x, y float64) error {
	startX := x + uniform(-120, -40)
	startY := y + uniform(-80, -30)
	steps := 12 + rand.Intn(11)

	duration := p.moveMinDuration
	if span := p.moveMaxDuration - p.moveMinDuration; span > 0 {
		duration += time.Duration(rand.Int63n(int64(span)))
	}
	stepDelay := duration / time.Duration(steps)

	for step := 1; step <= steps; step++ {
		t := float64(step) / float64(steps)
		ease := t * t * (3 - 2*t)
		nextX := startX + (x-startX)*ease + uniform(-1.5, 1.5)
		nextY := startY + (y-startY)*ease + uniform(-1.0, 1.0)

		if err := p.dispatchMouseEvent(ctx, client, "mouseMoved", nextX, nextY, 0); err != nil {
			return err
		}
		if err := sleepContext(ctx, stepDelay); err != nil {
			return err
		}
	}

	return nil
}

func (p *PerimeterXStrategy) dispatchMouseEvent(ctx context.Context, client *cdp.Client, eventType string, x, y float64, buttons int) error {
	_, err := client.Call(ctx, "Input.dispatchMouseEvent", map[string]any{
		"type":       eventType,
		"x":          x,
		"y":          y,
		"button":     "left",
		"buttons":    buttons,
		"clickCount": 1,
	})
	return err
}

func uniform(low, high float64) float64 {
	return low + rand.Float64()*(high-low)
}
