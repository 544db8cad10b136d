package dashboard

import (
	"fmt"

	"github.com/salesboard/backend/internal/domain/shared"
)

// Role is the dashboard viewer's role, resolved once at the assembler
// boundary so projection can switch exhaustively instead of re-checking
// strings per field.
type Role string

const (
	RoleManager Role = "manager"
	RoleAgent   Role = "agent"
)

// Viewer is the tagged viewer identity: a manager sees everything, an agent
// sees only their own slice.
type Viewer struct {
	Role    Role
	AgentID string
}

// ManagerViewer returns the unscoped manager identity.
func ManagerViewer() Viewer {
	return Viewer{Role: RoleManager}
}

// AgentViewer returns an identity scoped to one agent key.
func AgentViewer(agentID string) (Viewer, error) {
	if agentID == "" {
		return Viewer{}, fmt.Errorf("%w: agent viewer requires an agent id", shared.ErrInvalidInput)
	}
	return Viewer{Role: RoleAgent, AgentID: agentID}, nil
}

// NewViewer resolves a raw role claim into a Viewer.
func NewViewer(role, agentID string) (Viewer, error) {
	switch Role(role) {
	case RoleManager:
		return ManagerViewer(), nil
	case RoleAgent:
		return AgentViewer(agentID)
	default:
		return Viewer{}, fmt.Errorf("%w: unknown viewer role %q", shared.ErrInvalidInput, role)
	}
}
