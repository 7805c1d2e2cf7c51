// Package client implements a client for the admin server's status
// API.
package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	fspath "path"
	"time"

	"github.com/swarmnet/swarm/pkg/antientropy"
	"github.com/swarmnet/swarm/pkg/gossip"
)

type Client struct {
	httpClient *http.Client

	url *url.URL
}

func NewClient(url *url.URL) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: time.Second * 15,
		},
		url: url,
	}
}

func (c *Client) Peers() ([]gossip.Peer, error) {
	r, err := c.request("/status/node/peers")
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var peers []gossip.Peer
	if err := json.NewDecoder(r).Decode(&peers); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return peers, nil
}

func (c *Client) Stats() (gossip.Stats, error) {
	r, err := c.request("/status/node/stats")
	if err != nil {
		return gossip.Stats{}, err
	}
	defer r.Close()

	var stats gossip.Stats
	if err := json.NewDecoder(r).Decode(&stats); err != nil {
		return gossip.Stats{}, fmt.Errorf("decode response: %w", err)
	}
	return stats, nil
}

func (c *Client) Replica() ([]antientropy.Record, error) {
	r, err := c.request("/status/node/replica")
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var records []antientropy.Record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return records, nil
}

func (c *Client) request(path string) (io.ReadCloser, error) {
	url := new(url.URL)
	*url = *c.url
	url.Path = fspath.Join(url.Path, path)

	req, err := http.NewRequest(http.MethodGet, url.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("request: bad status: %d", resp.StatusCode)
	}
	return resp.Body, nil
}
