package goToken

import "errors"

var (
	// ErrEngineNotReady is returned by Engine methods called on a nil or unbuilt engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrBuilderUsed is returned when Build is called twice on the same Builder.
	ErrBuilderUsed = errors.New("builder already used")
	// ErrKeyProviderRequired is returned when no key provider was supplied.
	ErrKeyProviderRequired = errors.New("key provider required")
	// ErrUnknownServiceType is returned for Services entries that name no known service.
	ErrUnknownServiceType = errors.New("unknown service type")
	// ErrRedisRequired is returned when the Redis replay backend is selected without a client.
	ErrRedisRequired = errors.New("redis client required for redis replay backend")
)
