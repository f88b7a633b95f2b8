// Package log provides structured logging for the fusion orchestrator, built
// on zerolog. It exposes a single global Logger plus component-scoped child
// loggers (WithComponent, WithVerref, WithHost, WithTaskID) so every
// subsystem — asset manager, resource manager, provider proxy, volume
// manager — tags its log lines consistently without threading a logger
// through every call.
package log
