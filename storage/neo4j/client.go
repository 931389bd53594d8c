// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package neo4j

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Config holds Neo4j connection settings.
type Config struct {
	URI              string
	Username         string
	Password         string
	Database         string
	MaxPoolSize      int
	Timeout          time.Duration
	VectorDimensions int
}

// DefaultConfig returns settings for a local Neo4j instance.
func DefaultConfig() Config {
	return Config{
		URI:              "bolt://localhost:7687",
		Username:         "neo4j",
		MaxPoolSize:      50,
		Timeout:          10 * time.Second,
		VectorDimensions: 768,
	}
}

// Validate checks required settings.
func (c Config) Validate() error {
	if c.URI == "" {
		return errors.New("neo4j config: uri is required")
	}
	if c.VectorDimensions <= 0 {
		return errors.New("neo4j config: vector dimensions must be greater than 0")
	}
	return nil
}

// Client owns a Neo4j driver.
type Client struct {
	Driver   neo4j.DriverWithContext
	Database string
	logger   *slog.Logger
}

// NewClient creates a driver and verifies the server is reachable.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	auth := neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth, func(c *neo4j.Config) {
		if cfg.MaxPoolSize > 0 {
			c.MaxConnectionPoolSize = cfg.MaxPoolSize
		}
		c.SocketConnectTimeout = timeout
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j: init driver: %w", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j: verify connectivity: %w", err)
	}

	return &Client{
		Driver:   driver,
		Database: cfg.Database,
		logger:   slog.Default().With("component", "neo4j-graph"),
	}, nil
}

// Close closes the driver. Closing twice is safe.
func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.Driver == nil {
		return nil
	}
	err := c.Driver.Close(ctx)
	c.Driver = nil
	return err
}

func (c *Client) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return c.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: c.Database,
	})
}
