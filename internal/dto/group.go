package dto

// SetMembershipRequest assigns a role to a user within a group.
type SetMembershipRequest struct {
	UserID string `json:"userId" binding:"required"`
	Role   string `json:"role" binding:"required"`
}

// CreateSubgroupRequest adds a subgroup to a group.
type CreateSubgroupRequest struct {
	Name string `json:"name" binding:"required"`
}

// SubgroupMemberRequest adds or removes a subgroup member.
type SubgroupMemberRequest struct {
	UserID string `json:"userId" binding:"required"`
}
