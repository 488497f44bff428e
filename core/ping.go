package core

import (
	"time"
)

// --------------------------------------------------------------------------
// Ping
// --------------------------------------------------------------------------

// PingState is the outcome of one endpoint ping.
type PingState uint8

const (
	PingStateOK PingState = iota + 1
	PingStateTimeout
	PingStateError
)

func (s PingState) String() string {
	switch s {
	case PingStateOK:
		return "ok"
	case PingStateTimeout:
		return "timeout"
	case PingStateError:
		return "error"
	default:
		return "unknown"
	}
}

// EndpointPingReport describes one pinged endpoint.
type EndpointPingReport struct {
	ID        string
	Local     string
	Remote    string
	State     PingState
	Error     string
	Namespace string
	Latency   time.Duration
}

// PingResult is the outcome of an active ping across services.
type PingResult struct {
	ID       string
	Services map[ServiceType][]EndpointPingReport
}

// --------------------------------------------------------------------------
// Diagnostics
// --------------------------------------------------------------------------

// ClusterState summarizes endpoint connectivity.
type ClusterState uint8

const (
	ClusterStateOnline ClusterState = iota + 1
	ClusterStateDegraded
	ClusterStateOffline
)

func (s ClusterState) String() string {
	switch s {
	case ClusterStateOnline:
		return "online"
	case ClusterStateDegraded:
		return "degraded"
	case ClusterStateOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// EndpointState is the connection state of one endpoint.
type EndpointState uint8

const (
	EndpointStateConnected EndpointState = iota + 1
	EndpointStateConnecting
	EndpointStateDisconnected
)

func (s EndpointState) String() string {
	switch s {
	case EndpointStateConnected:
		return "connected"
	case EndpointStateConnecting:
		return "connecting"
	case EndpointStateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// EndpointDiagnostics describes one known endpoint without performing I/O.
type EndpointDiagnostics struct {
	Type         ServiceType
	ID           string
	Local        string
	Remote       string
	State        EndpointState
	LastActivity time.Time
}

// DiagnosticsResult is the passive connection-state report of a cluster.
type DiagnosticsResult struct {
	ID       string
	State    ClusterState
	Services map[ServiceType][]EndpointDiagnostics
}
