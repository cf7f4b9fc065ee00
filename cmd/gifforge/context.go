package main

import (
	"strings"
	"sync"

	"github.com/gifforge/gifforge/internal/apiclient"
)

// commandContext carries the flag values and lazily-built client shared by
// every subcommand.
type commandContext struct {
	serverFlag *string
	configFlag *string

	configOnce sync.Once
	config     *cliConfig
	configErr  error
}

func newCommandContext(serverFlag, configFlag *string) *commandContext {
	return &commandContext{
		serverFlag: serverFlag,
		configFlag: configFlag,
	}
}

func (c *commandContext) ensureConfig() (*cliConfig, error) {
	c.configOnce.Do(func() {
		path := ""
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		if path == "" {
			var err error
			path, err = defaultConfigPath()
			if err != nil {
				c.configErr = err
				return
			}
		}
		c.config, c.configErr = loadCLIConfig(path)
	})
	return c.config, c.configErr
}

// serverURL resolves the service base URL: the --server flag wins, then the
// config file, then the built-in default.
func (c *commandContext) serverURL() (string, error) {
	if c.serverFlag != nil {
		if url := strings.TrimRight(strings.TrimSpace(*c.serverFlag), "/"); url != "" {
			return url, nil
		}
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	return cfg.ServerURL, nil
}

func (c *commandContext) outputDir() string {
	cfg, err := c.ensureConfig()
	if err != nil {
		return ""
	}
	return cfg.OutputDir
}

func (c *commandContext) client() (apiclient.Client, error) {
	url, err := c.serverURL()
	if err != nil {
		return nil, err
	}
	return apiclient.New(apiclient.WithBaseURL(url)), nil
}
