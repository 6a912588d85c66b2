package common

const (
	ComponentProjector     = "projector"
	ComponentReorgHandler  = "reorg-handler"
	ComponentBalanceReader = "balance-reader"
	ComponentCoordinator   = "coordinator"
	ComponentCounters      = "counters"
	ComponentStore         = "store"
	ComponentAPI           = "api"
	ComponentMaintenance   = "maintenance"
)

var AllComponents = map[string]struct{}{
	ComponentProjector:     {},
	ComponentReorgHandler:  {},
	ComponentBalanceReader: {},
	ComponentCoordinator:   {},
	ComponentCounters:      {},
	ComponentStore:         {},
	ComponentAPI:           {},
	ComponentMaintenance:   {},
}

// ValidLogLevels is the set of log levels accepted in configuration.
var ValidLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}
