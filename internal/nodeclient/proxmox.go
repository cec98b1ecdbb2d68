package nodeclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	px "github.com/Telmate/proxmox-api-go/proxmox"

	"hvgateway/internal/apierr"
	"hvgateway/internal/metrics"
	"hvgateway/internal/model"
)

const backendProxmox = "proxmox"

// proxmoxClient talks to a single Proxmox VE node (or cluster entrypoint)
// over its REST API at /api2/json. Session construction and token
// handshake go through the Telmate/proxmox-api-go SDK; everything past
// that point is a hand-rolled net/http path over the transport shared with
// the Incus driver (newHTTPClient). GETs and POSTs here retry transient
// failures; the Incus driver does not retry.
type proxmoxClient struct {
	px         *px.Client
	http       *http.Client
	apiURL     string
	authHeader string
	node       *model.Node

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	data []byte
	at   time.Time
}

const cacheTTL = 2 * time.Minute

func newProxmoxClient(node *model.Node) (Client, error) {
	if node.APIURL == "" || node.APIKey == "" || node.APISecret == "" {
		return nil, fmt.Errorf("nodeclient: proxmox node %s missing api_url/api_key/api_secret", node.ID)
	}
	httpClient := newHTTPClient(InsecureTLS(node), 20*time.Second)

	pxClient, err := px.NewClient(node.APIURL, httpClient, "", nil, "", 300)
	if err != nil {
		return nil, fmt.Errorf("nodeclient: construct proxmox client for %s: %w", node.ID, err)
	}
	pxClient.SetAPIToken(node.APIKey, node.APISecret)

	return &proxmoxClient{
		px:         pxClient,
		http:       httpClient,
		apiURL:     strings.TrimRight(node.APIURL, "/"),
		authHeader: fmt.Sprintf("PVEAPIToken=%s=%s", node.APIKey, node.APISecret),
		node:       node,
		cache:      make(map[string]cacheEntry),
	}, nil
}

func (c *proxmoxClient) CheckHealth(ctx context.Context) (model.NodeStatus, error) {
	if _, err := c.getJSON(ctx, "/version"); err != nil {
		return model.StatusError, err
	}
	return model.StatusOnline, nil
}

func (c *proxmoxClient) ListVMs(ctx context.Context) ([]map[string]interface{}, error) {
	var resp struct {
		Data []map[string]interface{} `json:"data"`
	}
	raw, err := c.getRaw(ctx, "/cluster/resources", false)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, apierr.Upstreamf(err, "decode /cluster/resources response")
	}
	out := make([]map[string]interface{}, 0, len(resp.Data))
	for _, item := range resp.Data {
		t, _ := item["type"].(string)
		if t == "qemu" || t == "lxc" {
			out = append(out, item)
		}
	}
	return out, nil
}

func (c *proxmoxClient) PowerAction(ctx context.Context, vmID string, action PowerAction) error {
	id, err := ParseProxmoxID(vmID)
	if err != nil {
		return err
	}
	if !ValidPowerAction(string(action)) {
		return apierr.BadRequestf("unsupported power action %q", action)
	}
	path := fmt.Sprintf("/nodes/%s/%s/%s/status/%s",
		url.PathEscape(id.Node), id.Type, url.PathEscape(id.VMID), action)
	_, err = c.postForm(ctx, path, nil)
	return err
}

func (c *proxmoxClient) UpdateConfig(ctx context.Context, vmID string, patch map[string]interface{}) error {
	id, err := ParseProxmoxID(vmID)
	if err != nil {
		return err
	}
	path := fmt.Sprintf("/nodes/%s/%s/%s/config", url.PathEscape(id.Node), id.Type, url.PathEscape(id.VMID))
	form := make(map[string]string, len(patch))
	for k, v := range patch {
		form[k] = fmt.Sprintf("%v", v)
	}
	_, err = c.postForm(ctx, path, form)
	if err == nil {
		c.invalidate(path)
	}
	return err
}

func (c *proxmoxClient) GetDetails(ctx context.Context, vmID string) (map[string]interface{}, error) {
	id, err := ParseProxmoxID(vmID)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("/nodes/%s/%s/%s/config", url.PathEscape(id.Node), id.Type, url.PathEscape(id.VMID))
	var resp struct {
		Data map[string]interface{} `json:"data"`
	}
	raw, err := c.getRaw(ctx, path, true)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, apierr.Upstreamf(err, "decode config for %s", vmID)
	}
	return resp.Data, nil
}

func (c *proxmoxClient) MountMedia(ctx context.Context, vmID string, isoPath string) error {
	return c.UpdateConfig(ctx, vmID, map[string]interface{}{
		"ide2": fmt.Sprintf("%s,media=cdrom", isoPath),
	})
}

func (c *proxmoxClient) GetVNCInfo(ctx context.Context, vmID string) (*model.VncInfo, error) {
	id, err := ParseProxmoxID(vmID)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("/nodes/%s/%s/%s/vncproxy", url.PathEscape(id.Node), id.Type, url.PathEscape(id.VMID))
	body, err := c.postForm(ctx, path, map[string]string{"websocket": "1"})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data struct {
			Ticket string      `json:"ticket"`
			Port   interface{} `json:"port"`
			User   string      `json:"user"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apierr.Upstreamf(err, "decode vncproxy response for %s", vmID)
	}
	if resp.Data.Ticket == "" {
		return nil, apierr.Upstreamf(nil, "vncproxy for %s returned no ticket", vmID)
	}
	port, err := coercePort(resp.Data.Port)
	if err != nil {
		return nil, apierr.Upstreamf(err, "vncproxy for %s returned invalid port", vmID)
	}

	wssBase := toWSBase(c.apiURL)
	consoleURL := fmt.Sprintf("%s/api2/json/nodes/%s/%s/%s/vncwebsocket?port=%d&vncticket=%s",
		wssBase, url.PathEscape(id.Node), id.Type, url.PathEscape(id.VMID), port, url.QueryEscape(resp.Data.Ticket))

	return &model.VncInfo{URL: consoleURL, Ticket: resp.Data.Ticket, Port: port}, nil
}

// NodeMetrics fetches /nodes/{name}/status and converts the raw fractions
// into percentages. A Node registered here is treated as addressing
// exactly one Proxmox node.
func (c *proxmoxClient) NodeMetrics(ctx context.Context) (*model.NodeMetrics, error) {
	raw, err := c.getRaw(ctx, fmt.Sprintf("/nodes/%s/status", url.PathEscape(c.node.Name)), false)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data struct {
			CPU    float64            `json:"cpu"`
			Uptime int64              `json:"uptime"`
			Memory map[string]float64 `json:"memory"`
			Rootfs map[string]float64 `json:"rootfs"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, apierr.Upstreamf(err, "decode node status for %s", c.node.Name)
	}

	m := &model.NodeMetrics{
		CPUPercent: resp.Data.CPU * 100,
	}
	if total := resp.Data.Memory["total"]; total > 0 {
		m.RAMPercent = resp.Data.Memory["used"] / total * 100
	}
	if total := resp.Data.Rootfs["total"]; total > 0 {
		disk := resp.Data.Rootfs["used"] / total * 100
		m.DiskPercent = &disk
	}
	if resp.Data.Uptime > 0 {
		uptime := resp.Data.Uptime
		m.UptimeSeconds = &uptime
	}
	return m, nil
}

func coercePort(v interface{}) (uint16, error) {
	switch p := v.(type) {
	case float64:
		return uint16(p), nil
	case string:
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, err
		}
		return uint16(n), nil
	default:
		return 0, fmt.Errorf("unsupported port type %T", v)
	}
}

func toWSBase(apiURL string) string {
	switch {
	case strings.HasPrefix(apiURL, "https://"):
		return "wss://" + strings.TrimPrefix(apiURL, "https://")
	case strings.HasPrefix(apiURL, "http://"):
		return "ws://" + strings.TrimPrefix(apiURL, "http://")
	default:
		return apiURL
	}
}

// getJSON performs a live GET and decodes into a generic map, used for
// the health check.
func (c *proxmoxClient) getJSON(ctx context.Context, path string) (map[string]interface{}, error) {
	raw, err := c.getRaw(ctx, path, false)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, apierr.Upstreamf(err, "decode %s", path)
	}
	return out, nil
}

// getRaw performs a GET with retry/backoff. cacheable GETs (config detail
// reads) serve a short-TTL cached body and are invalidated on any config
// write; inventory, health, and node status reads are always live.
func (c *proxmoxClient) getRaw(ctx context.Context, path string, cacheable bool) ([]byte, error) {
	if cacheable {
		c.mu.RLock()
		if entry, ok := c.cache[path]; ok && time.Since(entry.at) < cacheTTL {
			c.mu.RUnlock()
			return entry.data, nil
		}
		c.mu.RUnlock()
	}

	fullURL := c.apiURL + "/api2/json" + path

	const maxAttempts = 3
	var body []byte
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		start := time.Now()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, apierr.Upstreamf(err, "build GET %s", path)
		}
		req.Header.Set("Authorization", c.authHeader)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "hvgateway-proxmox-client/1.0")

		resp, err := c.http.Do(req)
		if err != nil {
			metrics.ObserveUpstream(backendProxmox, "GET", path, 0, "network_error", start)
			if attempt < maxAttempts {
				backoff(attempt)
				continue
			}
			return nil, apierr.Upstreamf(err, "GET %s failed", path)
		}

		body, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			metrics.ObserveUpstream(backendProxmox, "GET", path, resp.StatusCode, "read_error", start)
			if attempt < maxAttempts {
				backoff(attempt)
				continue
			}
			return nil, apierr.Upstreamf(err, "read GET %s body", path)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			outcome := "error"
			if shouldRetryStatus(resp.StatusCode) && attempt < maxAttempts {
				outcome = "retry"
				metrics.ObserveUpstream(backendProxmox, "GET", path, resp.StatusCode, outcome, start)
				backoff(attempt)
				continue
			}
			metrics.ObserveUpstream(backendProxmox, "GET", path, resp.StatusCode, outcome, start)
			return nil, classifyHTTPStatus(resp.StatusCode, fmt.Errorf("proxmox GET %s returned %d: %s", path, resp.StatusCode, string(body)))
		}

		metrics.ObserveUpstream(backendProxmox, "GET", path, resp.StatusCode, "success", start)
		break
	}

	if cacheable {
		c.mu.Lock()
		c.cache[path] = cacheEntry{data: body, at: time.Now()}
		c.mu.Unlock()
	}
	return body, nil
}

func (c *proxmoxClient) postForm(ctx context.Context, path string, form map[string]string) ([]byte, error) {
	fullURL := c.apiURL + "/api2/json" + path
	vals := url.Values{}
	for k, v := range form {
		vals.Set(k, v)
	}

	const maxAttempts = 3
	var body []byte
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		start := time.Now()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, strings.NewReader(vals.Encode()))
		if err != nil {
			return nil, apierr.Upstreamf(err, "build POST %s", path)
		}
		req.Header.Set("Authorization", c.authHeader)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("User-Agent", "hvgateway-proxmox-client/1.0")

		resp, err := c.http.Do(req)
		if err != nil {
			metrics.ObserveUpstream(backendProxmox, "POST", path, 0, "network_error", start)
			if attempt < maxAttempts {
				backoff(attempt)
				continue
			}
			return nil, apierr.Upstreamf(err, "POST %s failed", path)
		}

		body, _ = io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
			outcome := "error"
			if shouldRetryStatus(resp.StatusCode) && attempt < maxAttempts {
				outcome = "retry"
				metrics.ObserveUpstream(backendProxmox, "POST", path, resp.StatusCode, outcome, start)
				backoff(attempt)
				continue
			}
			metrics.ObserveUpstream(backendProxmox, "POST", path, resp.StatusCode, outcome, start)
			return nil, classifyHTTPStatus(resp.StatusCode, fmt.Errorf("proxmox POST %s returned %d: %s", path, resp.StatusCode, string(body)))
		}
		metrics.ObserveUpstream(backendProxmox, "POST", path, resp.StatusCode, "success", start)
		break
	}

	return body, nil
}

func (c *proxmoxClient) invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if path == "" {
		c.cache = make(map[string]cacheEntry)
		return
	}
	delete(c.cache, path)
}

// classifyHTTPStatus maps a raw upstream status code into the gateway's
// error taxonomy: 401/403/404 surface distinctly, everything else is
// an opaque Upstream failure.
func classifyHTTPStatus(status int, cause error) error {
	switch status {
	case http.StatusUnauthorized:
		return apierr.Wrap(apierr.Unauthenticated, "upstream rejected credentials", cause)
	case http.StatusForbidden:
		return apierr.Wrap(apierr.Forbidden, "upstream denied permission", cause)
	case http.StatusNotFound:
		return apierr.Wrap(apierr.NotFound, "upstream resource not found", cause)
	default:
		return apierr.Wrap(apierr.Upstream, "upstream request failed", cause)
	}
}

var _ Client = (*proxmoxClient)(nil)
