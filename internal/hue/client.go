// Package hue talks to a Philips Hue bridge over the v2 CLIP API. Client is
// the command sender used by the dispatcher and also performs the one-time
// bridge initialization.
package hue

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openhue/openhue-go"
	"golang.org/x/time/rate"

	"hue-controller/internal/config"
	"hue-controller/internal/core"
	"hue-controller/internal/log"
)

// ErrLightNotFound is returned when the bridge does not know the configured light.
var ErrLightNotFound = errors.New("light not found")

// Client sends light commands to a single bridge.
type Client struct {
	api     *openhue.ClientWithResponses
	bridge  string
	limiter *rate.Limiter
	timeout time.Duration
	lightID string
}

// NewClient builds a client for the bridge described by cfg.
func NewClient(cfg config.BridgeConfig) (*Client, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.Insecure()},
		},
	}
	baseURL := cfg.IP
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "https://" + baseURL
	}
	return newClient(baseURL, cfg.AppKey, httpClient, cfg.RateLimit, cfg.RateBurst, cfg.Timeout(), cfg.LightID)
}

func newClient(baseURL, appKey string, httpClient *http.Client, rateLimit float64, rateBurst int, timeout time.Duration, lightID string) (*Client, error) {
	api, err := openhue.NewClientWithResponses(
		baseURL,
		openhue.WithHTTPClient(httpClient),
		openhue.WithRequestEditorFn(func(ctx context.Context, req *http.Request) error {
			req.Header.Set("hue-application-key", appKey)
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Hue client for %s: %w", baseURL, err)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		api:     api,
		bridge:  baseURL,
		limiter: rate.NewLimiter(rate.Limit(rateLimit), rateBurst),
		timeout: timeout,
		lightID: lightID,
	}, nil
}

// LightID returns the light resolved by Init, or the configured one before that.
func (c *Client) LightID() string {
	return c.lightID
}

// Init resolves the light to drive and reads its current state. With no light
// configured the first light the bridge reports is used.
func (c *Client) Init(ctx context.Context) (core.LightCommand, error) {
	logger := log.WithComponent("hue")

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.lightID == "" {
		resp, err := c.api.GetLightsWithResponse(ctx)
		if err != nil {
			return core.LightCommand{}, fmt.Errorf("list lights on %s: %w", c.bridge, err)
		}
		if resp.JSON200 == nil || resp.JSON200.Data == nil {
			return core.LightCommand{}, fmt.Errorf("list lights on %s: HTTP %d", c.bridge, resp.StatusCode())
		}
		for _, l := range *resp.JSON200.Data {
			if l.Id != nil {
				c.lightID = *l.Id
				break
			}
		}
		if c.lightID == "" {
			return core.LightCommand{}, ErrLightNotFound
		}
		logger.Infof("No light configured, using %s", c.lightID)
	}

	resp, err := c.api.GetLightWithResponse(ctx, c.lightID)
	if err != nil {
		return core.LightCommand{}, fmt.Errorf("get light %s: %w", c.lightID, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return core.LightCommand{}, fmt.Errorf("%w: %s", ErrLightNotFound, c.lightID)
	}
	if resp.JSON200 == nil || resp.JSON200.Data == nil || len(*resp.JSON200.Data) == 0 {
		return core.LightCommand{}, fmt.Errorf("get light %s: HTTP %d", c.lightID, resp.StatusCode())
	}

	l := (*resp.JSON200.Data)[0]
	var initial core.LightCommand
	if l.On != nil && l.On.On != nil {
		on := *l.On.On
		initial.On = &on
	}
	if l.Dimming != nil && l.Dimming.Brightness != nil {
		level := percentToLevel(float64(*l.Dimming.Brightness))
		initial.Brightness = &level
	}
	if l.Color != nil && l.Color.Xy != nil && l.Color.Xy.X != nil && l.Color.Xy.Y != nil {
		color := xyToRGB(float64(*l.Color.Xy.X), float64(*l.Color.Xy.Y))
		initial.Color = &color
	}
	logger.Infof("Light %s ready: %s", c.lightID, initial)
	return initial, nil
}

// Send applies cmd to every target. It waits for the rate limiter, bounds each
// request by the configured timeout and logs what failed.
func (c *Client) Send(ctx context.Context, cmd core.LightCommand, targets []string) error {
	logger := log.WithComponent("hue")
	if cmd.IsEmpty() {
		return nil
	}
	body := buildBody(cmd)

	var errs []error
	for _, id := range targets {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := c.update(ctx, id, body); err != nil {
			logger.Warnf("Update light %s with %s failed: %v", id, cmd, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Client) update(ctx context.Context, lightID string, body openhue.UpdateLightJSONRequestBody) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.UpdateLightWithResponse(ctx, lightID, body)
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("bridge returned HTTP %d", resp.StatusCode())
	}
	return nil
}

func buildBody(cmd core.LightCommand) openhue.UpdateLightJSONRequestBody {
	var body openhue.UpdateLightJSONRequestBody
	if cmd.On != nil {
		on := *cmd.On
		body.On = &openhue.On{On: &on}
	}
	if cmd.Brightness != nil {
		brightness := openhue.Brightness(levelToPercent(*cmd.Brightness))
		body.Dimming = &openhue.Dimming{Brightness: &brightness}
	}
	if cmd.Color != nil {
		xy := rgbToXY(*cmd.Color)
		x, y := float32(xy[0]), float32(xy[1])
		body.Color = &openhue.Color{
			Xy: &openhue.GamutPosition{X: &x, Y: &y},
		}
	}
	return body
}
