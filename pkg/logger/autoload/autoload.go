// Package autoload initializes the global logger from the LOGGER_* env vars
// as a side effect of being imported.
package autoload

import (
	configx "github.com/jirayu-k/wayfinder/pkg/config"
	logx "github.com/jirayu-k/wayfinder/pkg/logger"
)

func init() {
	cfg, err := configx.New[logx.Config]("LOGGER")
	if err != nil {
		logx.Init()
		return
	}
	logx.Init(*cfg)
}
