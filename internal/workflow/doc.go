// Package workflow coordinates queue processing. A Manager runs a pool
// of workers that pop tasks and dispatch them to registered handlers,
// plus a maintenance loop that reclaims tasks stuck in processing.
package workflow
