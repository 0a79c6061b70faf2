package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/dojo/internal/clock"
	"github.com/smallbiznis/dojo/internal/config"
	"github.com/smallbiznis/dojo/internal/migration"
	"github.com/smallbiznis/dojo/internal/observability"
	"github.com/smallbiznis/dojo/internal/server"
	"github.com/smallbiznis/dojo/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// HTTP API and the billing domains behind it
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
