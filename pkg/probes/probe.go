// Package probes provides the agent's view of its own process.
package probes

import "github.com/gravito-framework/quasar-teradata/pkg/types"

// SelfProbe describes the running agent process
type SelfProbe interface {
	Sample() (*types.AgentInfo, error)
}
