// Package status holds the lifecycle values stored in status fields.
package status

const (
	Active    = "active"
	Suspended = "suspended"
	Trial     = "trial"
	Deleted   = "deleted"
)

// IsValidOrg reports whether s is an organization status.
func IsValidOrg(s string) bool {
	switch s {
	case Active, Suspended, Trial:
		return true
	}
	return false
}

// OrgStatuses lists organization statuses in display order.
func OrgStatuses() []string {
	return []string{Active, Trial, Suspended}
}
