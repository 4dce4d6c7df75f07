// Package autoload configures the global logger from the LOG_*
// environment as a side effect of being imported.
package autoload

import (
	configx "github.com/nattcha/bundlecraft/pkg/config"
	logx "github.com/nattcha/bundlecraft/pkg/logger"
)

func init() {
	logx.Init(*configx.MustNew[logx.Config]("LOG"))
}
