package handler

import "github.com/xela07ax/spaceai-roles-modifier/internal/domain"

// AssignRolesRequest — пары (role, member_of) одинаковой длины.
type AssignRolesRequest struct {
	Roles    []uint16 `json:"roles" validate:"required,min=1,max=256"`
	MemberOf []bool   `json:"member_of" validate:"required,min=1,max=256"`
}

type DefaultRoleRequest struct {
	Role *uint16 `json:"role" validate:"required"`
}

type RevokeRequest struct {
	Reason string `json:"reason" validate:"max=256"`
}

type SimulationRequest struct {
	Enabled bool `json:"enabled"`
}

type TargetRequest struct {
	Clearance domain.Clearance        `json:"clearance" validate:"lte=2"`
	Options   domain.ExecutionOptions `json:"options" validate:"lte=3"`
}

type FunctionRequest struct {
	Options    domain.ExecutionOptions `json:"options" validate:"lte=3"`
	Parameters []domain.ParameterRule  `json:"parameters" validate:"max=48"`
}

type ParameterRequest struct {
	Type         domain.ParameterType `json:"type" validate:"lte=2"`
	Comparison   domain.Comparison    `json:"comparison" validate:"lte=2"`
	CompareValue domain.HexBytes      `json:"compare_value" validate:"required"`
}
