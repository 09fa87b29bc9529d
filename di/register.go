package di

import "github.com/samber/do/v2"

// RegisterSingletons registers all service providers as singletons.
// Services are registered in dependency order:
// 1. Config (path is optional, see ConfigPathKey)
// 2. Logger (level is optional, see LogLevelKey)
// 3. Cache (depends on Config, Logger).
func RegisterSingletons(i do.Injector) {
	do.Provide(i, NewConfig)
	do.Provide(i, NewLogger)
	do.Provide(i, NewCache)
}
