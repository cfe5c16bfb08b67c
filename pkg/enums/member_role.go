package enums

// MemberRole describes what a user may do within an advertiser account.
type MemberRole string

const (
	MemberRoleOwner   MemberRole = "owner"
	MemberRoleAdmin   MemberRole = "admin"
	MemberRoleAnalyst MemberRole = "analyst"
)

var validMemberRoles = []MemberRole{
	MemberRoleOwner,
	MemberRoleAdmin,
	MemberRoleAnalyst,
}

// IsValid reports whether the value matches the canonical member role enum.
func (r MemberRole) IsValid() bool {
	for _, candidate := range validMemberRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// CanManageBudgets reports whether the role may move money or change bids.
func (r MemberRole) CanManageBudgets() bool {
	return r == MemberRoleOwner || r == MemberRoleAdmin
}
