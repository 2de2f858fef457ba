//go:build wireinject
// +build wireinject

package app

import (
	"github.com/google/wire"

	"holmes/internal/infra/remote"
)

var CoreInfraSet = wire.NewSet(
	NewMetricsRegistry,
	NewMetrics,
	NewRunner,
	NewSweeper,
)

var RemoteSet = wire.NewSet(
	NewMCPOpener,
	wire.Bind(new(remote.SessionOpener), new(*remote.MCPOpener)),
	NewRemoteToolCache,
	NewBridge,
)

var SessionSet = wire.NewSet(
	NewTaskArchive,
	NewTaskStore,
	NewHypothesisStore,
)

var ToolsetSet = wire.NewSet(
	NewRegistry,
	NewEvaluator,
	NewDefinitionLoader,
	NewStatusStore,
	NewManager,
)

var AppSet = wire.NewSet(
	CoreInfraSet,
	RemoteSet,
	SessionSet,
	ToolsetSet,
	NewApplication,
)
